package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// noVehicle je uložená hodnota pro zařízení bez vozidla (negativní cache).
const noVehicle = "-"

// Resolver najde vozidlo zařízení. Implementuje ho store.Store.
type Resolver interface {
	ResolveVehicle(ctx context.Context, deviceID string) (vehicleID int64, ok bool, err error)
}

// VehicleKey je klíč mapování zařízení na vozidlo.
func VehicleKey(deviceID string) string {
	return fmt.Sprintf("device:vehicle:%s", deviceID)
}

// GenerationKey je čítač změn přiřazení zařízení. Každá invalidace ho zvýší.
func GenerationKey(deviceID string) string {
	return fmt.Sprintf("device:vehicle:gen:%s", deviceID)
}

// ResolverCache obaluje Resolver a výsledky drží ve Valkey po dobu ttl.
// Kdo mění přiřazení zařízení, musí zavolat Invalidate.
// Výpadek Valkey se jen zaloguje a dotaz jde rovnou do databáze.
//
// Uložená hodnota je "<generace>:<vozidlo>". Záznam platí, jen když jeho
// generace odpovídá aktuálnímu čítači. Zápis, který doběhne až po invalidaci,
// tak nese starou generaci a při čtení se zahodí.
type ResolverCache struct {
	next   Resolver
	kv     KV
	ttl    time.Duration
	logger zerolog.Logger
}

// NewResolverCache vytvoří cache. ttl <= 0 cache vypíná.
func NewResolverCache(next Resolver, kv KV, ttl time.Duration, logger zerolog.Logger) *ResolverCache {
	return &ResolverCache{next: next, kv: kv, ttl: ttl, logger: logger}
}

func (c *ResolverCache) ResolveVehicle(ctx context.Context, deviceID string) (int64, bool, error) {
	if c.ttl <= 0 {
		return c.next.ResolveVehicle(ctx, deviceID)
	}

	key := VehicleKey(deviceID)
	entry, cacheUp := c.lookup(ctx, deviceID)
	if entry.hit {
		return entry.vehicleID, entry.ok, nil
	}

	// Generaci čteme před dotazem do DB, ne po něm.
	id, ok, err := c.next.ResolveVehicle(ctx, deviceID)
	if err != nil {
		return 0, false, err
	}
	if !cacheUp {
		return id, ok, nil
	}

	value := noVehicle
	if ok {
		value = strconv.FormatInt(id, 10)
	}
	if err := c.kv.Set(ctx, key, entry.current+":"+value, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Zápis do cache selhal")
	}
	return id, ok, nil
}

type cached struct {
	hit       bool
	vehicleID int64
	ok        bool
	current   string // aktuální generace, "0" když čítač ještě neexistuje
}

// lookup přečte záznam i čítač jedním MGet. cacheUp == false při výpadku Valkey.
func (c *ResolverCache) lookup(ctx context.Context, deviceID string) (cached, bool) {
	key := VehicleKey(deviceID)
	vals, err := c.kv.MGet(ctx, key, GenerationKey(deviceID)).Result()
	if err != nil || len(vals) != 2 {
		c.logger.Warn().Err(err).Str("key", key).Msg("Valkey nedostupný, ptám se DB")
		return cached{}, false
	}

	out := cached{current: "0"}
	if g, isStr := vals[1].(string); isStr {
		out.current = g
	}
	raw, isStr := vals[0].(string)
	if !isStr {
		return out, true // miss
	}

	gen, value, found := strings.Cut(raw, ":")
	if !found {
		c.logger.Warn().Str("key", key).Str("value", raw).Msg("Neplatná hodnota v cache, ptám se DB")
		return out, true
	}
	if gen != out.current {
		return out, true // zapsáno před poslední invalidací
	}
	if value == noVehicle {
		out.hit = true
		return out, true
	}
	id, perr := strconv.ParseInt(value, 10, 64)
	if perr != nil {
		c.logger.Warn().Str("key", key).Str("value", raw).Msg("Neplatná hodnota v cache, ptám se DB")
		return out, true
	}
	out.hit, out.vehicleID, out.ok = true, id, true
	return out, true
}

// Invalidate smaže mapování zařízení z cache.
func (c *ResolverCache) Invalidate(ctx context.Context, deviceID string) error {
	return invalidate(ctx, c.kv, deviceID)
}

// Invalidator jen maže mapování. Používá ho fleet-api, které přiřazení mění,
// ale samo přes cache nic nehledá.
type Invalidator struct {
	kv KV
}

func NewInvalidator(kv KV) *Invalidator {
	return &Invalidator{kv: kv}
}

func (i *Invalidator) Invalidate(ctx context.Context, deviceID string) error {
	return invalidate(ctx, i.kv, deviceID)
}

// invalidate nejdřív posune generaci, tím zneplatní i zápisy, které
// právě běží. Smazání klíče už jen uklízí.
func invalidate(ctx context.Context, kv KV, deviceID string) error {
	if err := kv.Incr(ctx, GenerationKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("invalidace cache pro %s: %w", deviceID, err)
	}
	if err := kv.Del(ctx, VehicleKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("invalidace cache pro %s: %w", deviceID, err)
	}
	return nil
}
