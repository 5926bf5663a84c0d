// Package mqtt implements the driver pub/sub channel over MQTT using
// Eclipse Paho. Jobs are published to per-driver topics; driver status
// events arrive on a shared wildcard subscription.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/citydrop/dispatch/core/channel"
	"github.com/citydrop/dispatch/core/errs"
	corelogger "github.com/citydrop/dispatch/core/logger"
	"github.com/citydrop/dispatch/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	JobTopic    string `json:"job_topic"`    // per-driver prefix, e.g. drivers/%s/jobs
	StatusTopic string `json:"status_topic"` // wildcard, e.g. drivers/+/status
	QoS         byte   `json:"qos"`
	UseTLS      bool   `json:"use_tls"`
	ClientCert  string `json:"client_cert"`
	ClientKey   string `json:"client_key"`
	CABundle    string `json:"ca_bundle"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.JobTopic == "" {
		c.JobTopic = "drivers/%s/jobs"
	}
	if c.StatusTopic == "" {
		c.StatusTopic = "drivers/+/status"
	}
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoChannel implements channel.Channel using Eclipse Paho.
type PahoChannel struct {
	cli         pahoClient
	jobTopic    string
	statusTopic string
	qos         byte
	log         corelogger.Logger

	mu      sync.Mutex
	handler channel.StatusHandler
}

var _ channel.Channel = (*PahoChannel)(nil)

// NewPahoChannel connects to the MQTT broker.
func NewPahoChannel(cfg Config) (*PahoChannel, error) {
	cfg.SetDefaults()
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.SetConnectTimeout(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	log := logger.New("driver-channel")
	pc := &PahoChannel{
		jobTopic:    cfg.JobTopic,
		statusTopic: cfg.StatusTopic,
		qos:         cfg.QoS,
		log:         log,
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(pc.statusTopic, pc.qos, pc.onStatus); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

func (p *PahoChannel) onStatus(_ paho.Client, msg paho.Message) {
	var ev channel.StatusEvent
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		p.log.Errorf("invalid status event on %s: %v", msg.Topic(), err)
		return
	}
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// PublishJob pushes the job message to the driver's topic. Channel failures
// surface as errs.ErrUpstream; the orders stay ASSIGNED for the sweeper to
// reclaim, never silently lost.
func (p *PahoChannel) PublishJob(driverID string, job channel.JobMessage) error {
	if job.SentAt == 0 {
		job.SentAt = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf(p.jobTopic, driverID)
	token := p.cli.Publish(topic, p.qos, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("%w: publish job %s to %s: %v", errs.ErrUpstream, job.JobID, topic, token.Error())
	}
	p.log.Infof("published job %s to %s (%d orders)", job.JobID, topic, len(job.OrderIDs))
	return nil
}

// SubscribeStatus registers the handler for incoming driver events.
func (p *PahoChannel) SubscribeStatus(h channel.StatusHandler) error {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
	return nil
}

// Close disconnects from the broker.
func (p *PahoChannel) Close() error {
	if p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	return nil
}
