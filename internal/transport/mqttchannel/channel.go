// Package mqttchannel implements the MQTT Channel (spec §4.7, C7): a thin
// wrapper over eclipse/paho.mqtt.golang with a shared heap budget standing
// in for the AWS IoT SDK's internal allocator budget, grounded on the
// teacher's own SetupMQTT/OnConnect/OnConnectionLost/checkConnected
// functions in cmd/mqtt-to-postgresql/mqtt.go.
package mqttchannel

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/edgefleet/inspection-engine/internal/backoffutil"
	"github.com/edgefleet/inspection-engine/internal/serializer"
	"github.com/edgefleet/inspection-engine/internal/types"
)

// reconnectSlotTime and reconnectMaxBackoff bound the jittered backoff
// between reconnect attempts (spec A5).
const (
	reconnectSlotTime   = 500 * time.Millisecond
	reconnectMaxBackoff = 30 * time.Second
)

// MaximumHeapBudgetBytes mirrors the AWS IoT SDK's internal heap budget
// the original implementation reserves against before handing a payload
// to the MQTT client (spec §4.7 "heap ledger").
const MaximumHeapBudgetBytes uint64 = 10 * 1024 * 1024

// sharedHeapLedger is the one heap budget every Channel reserves against.
var sharedHeapLedger = newHeapLedger(MaximumHeapBudgetBytes)

// MaxMessageSizeBytes is the maximum single-publish payload size; larger
// payloads are rejected before ever touching the heap ledger.
const MaxMessageSizeBytes = 128 * 1024

// ErrPayloadTooLarge is returned when a payload exceeds MaxMessageSizeBytes.
var ErrPayloadTooLarge = fmt.Errorf("mqttchannel: payload exceeds %d bytes", MaxMessageSizeBytes)

// ErrQuotaReached is returned when publishing would exceed the shared heap
// budget.
var ErrQuotaReached = fmt.Errorf("mqttchannel: heap budget exhausted")

var (
	connectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inspection_engine_mqtt_connected",
		Help: "Whether the MQTT channel is currently connected to the broker.",
	})
	publishedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inspection_engine_mqtt_published_total",
		Help: "Total snapshots successfully published over MQTT.",
	})
	quotaRejectedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inspection_engine_mqtt_quota_rejected_total",
		Help: "Total publishes rejected for exceeding the heap budget.",
	})
)

// Channel owns one MQTT client connection and reserves against the
// package-wide heap budget ledger, which gates how much in-flight payload
// memory all channels together may hold at once (spec §4.7: "no retries at this layer"; the Payload Spool handles
// retry pacing above it).
type Channel struct {
	client MQTT.Client
	topic  string
	logger *zap.SugaredLogger

	ledger *heapLedger

	reconnecting atomic.Bool
	closed       atomic.Bool
}

// Options configures a new Channel.
type Options struct {
	BrokerURL string
	ClientID  string
	CAFile    string
	CertFile  string
	KeyFile   string
}

// New constructs and connects a Channel. Connection failure is returned,
// not panicked, so callers can retry with backoffutil rather than crash
// the worker (spec §4.7, §8).
func New(opts Options, logger *zap.SugaredLogger) (*Channel, error) {
	clientOpts := MQTT.NewClientOptions()
	clientOpts.AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetAutoReconnect(false) // backoffutil drives reconnect pacing explicitly, not paho's internal retry

	c := &Channel{topic: "", logger: logger, ledger: sharedHeapLedger}

	if opts.CertFile != "" {
		tlsConfig, err := buildTLSConfig(opts.CAFile, opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("mqttchannel: building TLS config: %w", err)
		}
		clientOpts.SetTLSConfig(tlsConfig)
	}

	clientOpts.SetOnConnectHandler(c.onConnect)
	clientOpts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(clientOpts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttchannel: connect: %w", token.Error())
	}
	return c, nil
}

func buildTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	certpool := x509.NewCertPool()
	if caFile != "" {
		pemCerts, err := os.ReadFile(caFile)
		if err != nil {
			return nil, err
		}
		certpool.AppendCertsFromPEM(pemCerts)
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		RootCAs:      certpool,
		Certificates: []tls.Certificate{cert},
	}, nil
}

func (c *Channel) onConnect(client MQTT.Client) {
	connectedGauge.Set(1)
	c.logger.Info("mqttchannel: connected")
}

func (c *Channel) onConnectionLost(client MQTT.Client, err error) {
	connectedGauge.Set(0)
	c.logger.Warnw("mqttchannel: connection lost", "error", err)
	go c.reconnectLoop()
}

// reconnectLoop re-attempts Connect with jittered exponential backoff,
// driven explicitly since SetAutoReconnect is disabled (spec A5). Only one
// loop runs at a time; it exits once connected or once Disconnect has been
// called.
func (c *Channel) reconnectLoop() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return // a reconnect loop is already running
	}
	defer c.reconnecting.Store(false)

	var retries int64
	for !c.closed.Load() && !c.client.IsConnected() {
		retries++
		backoffutil.Sleep(retries, reconnectSlotTime, reconnectMaxBackoff)
		if c.closed.Load() {
			return
		}
		token := c.client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Warnw("mqttchannel: reconnect attempt failed", "error", err, "retries", retries)
			continue
		}
		c.logger.Infow("mqttchannel: reconnected", "retries", retries)
		return
	}
}

// SetTopic sets the topic every Publish call targets.
func (c *Channel) SetTopic(topic string) {
	c.topic = topic
}

// Subscribe blocks until the control-topic subscription succeeds or fails.
// Only control topics are subscribed to here; data publishing never
// subscribes (spec §4.7).
func (c *Channel) Subscribe(topic string, handler func(payload []byte)) error {
	token := c.client.Subscribe(topic, 1, func(_ MQTT.Client, msg MQTT.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	return token.Error()
}

// Publish serializes data via jsoniter and publishes it to the configured
// topic, reserving and releasing heap-ledger budget around the call. It
// never retries: a failure here is the Payload Spool's job to absorb
// (spec §4.7, §4.8).
func (c *Channel) Publish(data *types.TriggeredCollectionSchemeData) error {
	payload, err := serializer.Marshal(data)
	if err != nil {
		return fmt.Errorf("mqttchannel: marshal: %w", err)
	}
	if len(payload) > MaxMessageSizeBytes {
		return ErrPayloadTooLarge
	}
	if !c.ledger.reserve(uint64(len(payload))) {
		quotaRejectedCounter.Inc()
		return ErrQuotaReached
	}
	defer c.ledger.release(uint64(len(payload)))

	token := c.client.Publish(c.topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttchannel: publish: %w", err)
	}
	publishedCounter.Inc()
	return nil
}

// IsAlive reports whether the underlying connection is up and a topic has
// been configured, matching the teacher's checkConnected liveness check.
func (c *Channel) IsAlive() bool {
	return c.client.IsConnected() && c.topic != ""
}

// Disconnect tears down the connection, waiting up to quiesceMs for
// in-flight work to drain, and stops any in-progress reconnect loop.
func (c *Channel) Disconnect(quiesceMs uint) {
	c.closed.Store(true)
	c.client.Disconnect(quiesceMs)
}
