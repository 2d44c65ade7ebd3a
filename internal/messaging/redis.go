package messaging

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Combatjuan/orphan-maker/internal/logger"
	"github.com/Combatjuan/orphan-maker/internal/types"
)

const (
	machineHash    = "orphan-maker"
	machineChannel = "orphan-maker"
	stateCommands  = "orphan-maker:state"
)

// Callbacks are the operator actions the portal can inject into the
// control system.
type Callbacks struct {
	ResetCallback func() error // operator fault acknowledgement
}

// RedisClient is the machine's portal: it publishes state and live launch
// statistics for a dashboard, and listens for operator commands.
type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(host string, port int, l *logger.Logger) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		logger: l.WithTag("redis"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetCallbacks wires the command handlers. Must be called before
// StartListening.
func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening begins the command listeners. Called only after the
// control system is fully initialized.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")
	r.wg.Add(1)
	go r.listCommandListener(stateCommands, r.handleStateCommand)
	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// BRPOP with a short timeout so context cancellation is
			// noticed promptly.
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if r.ctx.Err() != nil {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				continue
			}
			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) handleStateCommand(value string) error {
	switch value {
	case "reset":
		if r.callbacks.ResetCallback == nil {
			return nil
		}
		return r.callbacks.ResetCallback()
	default:
		r.logger.Infof("Invalid state command value: %s", value)
		return fmt.Errorf("invalid state command: %s", value)
	}
}

// PublishMachineState stores the sequencer state in the machine hash and
// announces the change on the pub/sub channel.
func (r *RedisClient) PublishMachineState(state types.MachineState) error {
	if err := r.client.HSet(r.ctx, machineHash, "state", string(state)).Err(); err != nil {
		return fmt.Errorf("failed to store machine state: %w", err)
	}
	return r.client.Publish(r.ctx, machineChannel, "state").Err()
}

// Telemetry is the live statistics record for a speedometer or position
// display.
type Telemetry struct {
	Position float64
	Velocity float64
	Known    bool
}

// PublishTelemetry writes the current motion estimate into the machine
// hash. This is display data; failures are not faults.
func (r *RedisClient) PublishTelemetry(t Telemetry) error {
	return r.client.HSet(r.ctx, machineHash,
		"position", strconv.FormatFloat(t.Position, 'f', 3, 64),
		"speed", strconv.FormatFloat(t.Velocity, 'f', 3, 64),
		"homed", strconv.FormatBool(t.Known),
	).Err()
}

// PublishRunStats records the outcome of a completed launch: duration and
// peak speed, for the dashboard's last-run display.
func (r *RedisClient) PublishRunStats(duration time.Duration, peakSpeed float64) error {
	return r.client.HSet(r.ctx, machineHash,
		"last-run-duration", strconv.FormatFloat(duration.Seconds(), 'f', 2, 64),
		"last-run-peak-speed", strconv.FormatFloat(peakSpeed, 'f', 3, 64),
	).Err()
}

// PublishFault records which interlock tripped, for operator diagnosis.
func (r *RedisClient) PublishFault(reason string) error {
	if err := r.client.HSet(r.ctx, machineHash, "fault-reason", reason).Err(); err != nil {
		return fmt.Errorf("failed to store fault reason: %w", err)
	}
	return r.client.Publish(r.ctx, machineChannel, "fault").Err()
}

func (r *RedisClient) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}
