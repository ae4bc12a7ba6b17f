// Package pubdispatch implements the publish-on-save hook (spec.md §4.9,
// §5): every entity save with a non-empty change set publishes a
// camelCase-keyed record on procdata/<instance_id>/<model>/<pk>, delayed
// ~50ms to let the enclosing DB transaction commit before the message goes
// out (§5 suspension point (iii), "implementable as a deferred handoff to
// a dispatcher goroutine/queue, not a wall-clock sleep under lock"). redis
// is the durable handoff queue, not a domain-state cache — the persistent
// store remains the sole source of truth per §5.
package pubdispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

const pendingKey = "monapps:pubdispatch:pending"

// DefaultDelay matches spec.md §5's "publish delay ... bounded sleep ≈
// 50ms".
const DefaultDelay = 50 * time.Millisecond

// Publisher is the narrow seam internal/transport/mqtt.Client satisfies;
// pubdispatch depends on this interface rather than the concrete MQTT
// client so it can be exercised without a broker.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Config configures the dispatcher's backing redis connection and handoff
// delay.
type Config struct {
	Addr     string
	Password string
	DB       int
	Delay    time.Duration
}

// Dispatcher defers publish-on-save jobs through a redis sorted set keyed
// by due time (UnixMilli score), so Enqueue never blocks its caller on the
// actual MQTT round trip.
type Dispatcher struct {
	rdb        *redis.Client
	owned      bool
	publisher  Publisher
	instanceID string
	delay      time.Duration
	log        logr.Logger
}

// New dials cfg's redis instance and wires a Dispatcher publishing through
// publisher under instanceID (spec.md §6's topic instance segment).
func New(cfg Config, publisher Publisher, instanceID string, log logr.Logger) *Dispatcher {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	d := NewWithClient(rdb, publisher, instanceID, cfg.Delay, log)
	d.owned = true
	return d
}

// NewWithClient wires an already-constructed redis client — the shape
// miniredis-backed tests use, and the seam New delegates to.
func NewWithClient(rdb *redis.Client, publisher Publisher, instanceID string, delay time.Duration, log logr.Logger) *Dispatcher {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Dispatcher{rdb: rdb, publisher: publisher, instanceID: instanceID, delay: delay, log: log.WithName("pubdispatch")}
}

// Close releases the redis connection if this Dispatcher opened it itself.
func (d *Dispatcher) Close() error {
	if !d.owned {
		return nil
	}
	return d.rdb.Close()
}

// Enqueue schedules a publish-on-save record for modelName/pk (spec.md
// §4.9): {id, messageType, <changed fields>}. changed is the caller's
// already-camelCased field->value change set — pass the full entity
// snapshot here when the change set was empty (a bulk/admin save, per
// §4.9's "an empty change set means ... publish the whole snapshot").
func (d *Dispatcher) Enqueue(ctx context.Context, modelName, pk string, messageType model.MessageType, changed map[string]any) error {
	body, err := buildBody(pk, messageType, changed)
	if err != nil {
		return fmt.Errorf("pubdispatch: build body: %w", err)
	}
	topic := fmt.Sprintf("procdata/%s/%s/%s", d.instanceID, modelName, pk)
	envelope, err := buildEnvelope(topic, body)
	if err != nil {
		return fmt.Errorf("pubdispatch: build envelope: %w", err)
	}

	due := float64(time.Now().Add(d.delay).UnixMilli())
	member := uuid.NewString() + ":" + envelope
	if err := d.rdb.ZAdd(ctx, pendingKey, redis.Z{Score: due, Member: member}).Err(); err != nil {
		return fmt.Errorf("pubdispatch: enqueue: %w", err)
	}
	return nil
}

// buildBody assembles {id, messageType, <changed fields>} incrementally
// via sjson, avoiding a full struct marshal round trip for what is often a
// one- or two-field change set.
func buildBody(pk string, messageType model.MessageType, changed map[string]any) ([]byte, error) {
	body := []byte("{}")
	var err error
	if body, err = sjson.SetBytes(body, "id", pk); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "messageType", string(messageType)); err != nil {
		return nil, err
	}
	for field, value := range changed {
		if body, err = sjson.SetBytes(body, field, value); err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
	}
	return body, nil
}

func buildEnvelope(topic string, body []byte) (string, error) {
	env := []byte("{}")
	env, err := sjson.SetBytes(env, "topic", topic)
	if err != nil {
		return "", err
	}
	env, err = sjson.SetRawBytes(env, "body", body)
	if err != nil {
		return "", err
	}
	return string(env), nil
}

// Run polls the pending queue every tick until ctx is cancelled,
// publishing due jobs through Publisher. Call this from one goroutine per
// process; ZRem's return value arbitrates between racing dispatcher
// instances so a job is only ever published once.
func (d *Dispatcher) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainDue(ctx)
		}
	}
}

// DrainDue runs one polling pass synchronously — the shape tests and a
// caller doing a final flush before shutdown use instead of Run's loop.
func (d *Dispatcher) DrainDue(ctx context.Context) {
	d.drainDue(ctx)
}

func (d *Dispatcher) drainDue(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := d.rdb.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		d.log.Error(err, "failed to scan due publish jobs")
		return
	}
	for _, member := range members {
		removed, err := d.rdb.ZRem(ctx, pendingKey, member).Result()
		if err != nil {
			d.log.Error(err, "failed to claim due publish job")
			continue
		}
		if removed == 0 {
			continue // another dispatcher instance already claimed this job
		}
		d.publishMember(member)
	}
}

func (d *Dispatcher) publishMember(member string) {
	idx := strings.IndexByte(member, ':')
	if idx < 0 {
		d.log.Error(fmt.Errorf("missing uuid prefix"), "dropping unparseable job", "member", member)
		return
	}
	envelope := member[idx+1:]
	topic := gjson.Get(envelope, "topic").String()
	body := gjson.Get(envelope, "body").Raw
	if topic == "" || body == "" {
		d.log.Error(fmt.Errorf("missing topic or body"), "dropping malformed job", "envelope", envelope)
		return
	}
	if err := d.publisher.Publish(topic, []byte(body)); err != nil {
		d.log.Error(err, "failed to publish deferred job", "topic", topic)
	}
}
