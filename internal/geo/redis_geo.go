package geo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/mechanic-dispatch/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands so several API processes share one index.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key}
}

func (r *RedisGeo) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisGeo) Close() error { return r.client.Close() }

func (r *RedisGeo) Upsert(ctx context.Context, m models.MechanicSnapshot) error {
	// a mechanic without a position must not be found by GEOSEARCH at all
	if m.Loc == nil {
		if err := r.client.ZRem(ctx, r.key, m.ID).Err(); err != nil {
			return fmt.Errorf("geo remove %s: %w", m.ID, err)
		}
	} else {
		if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: m.Loc.Lng, Latitude: m.Loc.Lat, Name: m.ID}).Err(); err != nil {
			return fmt.Errorf("geo add %s: %w", m.ID, err)
		}
	}
	err := r.client.HSet(ctx, MetaKey(m.ID), map[string]interface{}{
		"name":              m.Name,
		"rating":            strconv.FormatFloat(m.Rating, 'f', -1, 64),
		"available":         strconv.FormatBool(m.Available),
		"completed_jobs":    strconv.Itoa(m.CompletedJobs),
		"service_radius_km": strconv.FormatFloat(m.ServiceRadiusKm, 'f', -1, 64),
		"hourly_rate":       strconv.FormatFloat(m.HourlyRate, 'f', -1, 64),
		"specialties":       strings.Join(m.Specialties, ","),
		"updated":           time.Now().Format(time.RFC3339),
	}).Err()
	if err != nil {
		return fmt.Errorf("geo meta %s: %w", m.ID, err)
	}
	return nil
}

func (r *RedisGeo) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]models.NearbyMechanic, error) {
	if err := ValidateQuery(lat, lng, radiusKm); err != nil {
		return nil, err
	}
	res, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}
	if len(res) == 0 {
		return []models.NearbyMechanic{}, nil
	}

	pipe := r.client.Pipeline()
	metas := make([]*redis.MapStringStringCmd, len(res))
	for i, g := range res {
		metas[i] = pipe.HGetAll(ctx, MetaKey(g.Name))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("geo meta fetch: %w", err)
	}

	vals := make([]map[string]string, len(metas))
	for i, m := range metas {
		vals[i] = m.Val()
	}
	return rankHits(lat, lng, radiusKm, res, vals), nil
}

// rankHits turns GEOSEARCH hits and their meta hashes into the ranked result: unavailable
// mechanics and hits outside the haversine radius are dropped.
func rankHits(lat, lng, radiusKm float64, hits []redis.GeoLocation, metas []map[string]string) []models.NearbyMechanic {
	out := make([]models.NearbyMechanic, 0, len(hits))
	for i, g := range hits {
		snap := snapshotFromMeta(g.Name, metas[i])
		if !snap.Available {
			continue
		}
		snap.Loc = &models.Coord{Lat: g.Latitude, Lng: g.Longitude}
		// redis uses a slightly different earth radius; keep one distance policy
		dist := Haversine(lat, lng, g.Latitude, g.Longitude)
		if dist > radiusKm {
			continue
		}
		out = append(out, models.NearbyMechanic{MechanicSnapshot: snap, DistanceKm: dist})
	}
	Rank(out)
	return out
}

func snapshotFromMeta(id string, m map[string]string) models.MechanicSnapshot {
	s := models.MechanicSnapshot{ID: id, Name: m["name"], Available: m["available"] == "true"}
	if f, err := strconv.ParseFloat(m["rating"], 64); err == nil {
		s.Rating = f
	}
	if n, err := strconv.Atoi(m["completed_jobs"]); err == nil {
		s.CompletedJobs = n
	}
	if f, err := strconv.ParseFloat(m["service_radius_km"], 64); err == nil {
		s.ServiceRadiusKm = f
	}
	if f, err := strconv.ParseFloat(m["hourly_rate"], 64); err == nil {
		s.HourlyRate = f
	}
	if v := m["specialties"]; v != "" {
		s.Specialties = strings.Split(v, ",")
	}
	if t, err := time.Parse(time.RFC3339, m["updated"]); err == nil {
		s.Updated = t
	}
	return s
}

// MetaKey is the hash holding a mechanic's ranking fields next to its GEO entry.
func MetaKey(id string) string { return "mechanic:meta:" + id }
