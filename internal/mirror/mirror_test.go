package mirror

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/rickgao/nano-relay/internal/config"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMirror_PublishKeyedByAccount(t *testing.T) {
	p := mocks.NewAsyncProducer(t, NewProducerConfig("test"))
	p.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "confirmations" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "nano_1abc" {
			return errors.New("wrong key " + string(key))
		}
		return nil
	})

	m := NewWithProducer("confirmations", p, nil, nil)
	m.Publish("nano_1abc", []byte(`{"topic":"confirmation"}`))

	waitFor(t, func() bool { return m.Stats().Published == 1 })

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := m.Stats().Failed; got != 0 {
		t.Errorf("Failed = %d, want 0", got)
	}
}

func TestMirror_PublishFailure(t *testing.T) {
	p := mocks.NewAsyncProducer(t, NewProducerConfig("test"))
	p.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	m := NewWithProducer("confirmations", p, nil, nil)
	m.Publish("nano_1abc", []byte(`{}`))

	waitFor(t, func() bool { return m.Stats().Failed == 1 })
	m.Close()

	if got := m.Stats().Published; got != 0 {
		t.Errorf("Published = %d, want 0", got)
	}
}

func TestMirror_CloseIdempotent(t *testing.T) {
	p := mocks.NewAsyncProducer(t, NewProducerConfig(""))
	m := NewWithProducer("confirmations", p, nil, nil)

	if err := m.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(config.MirrorConfig{Topic: "t"}, nil, nil); err == nil {
		t.Error("New() without brokers should fail")
	}
	if _, err := New(config.MirrorConfig{Brokers: []string{"localhost:9092"}}, nil, nil); err == nil {
		t.Error("New() without topic should fail")
	}
}

func TestNewProducerConfig(t *testing.T) {
	cfg := NewProducerConfig("relay")
	if cfg.ClientID != "relay" {
		t.Errorf("ClientID = %q, want relay", cfg.ClientID)
	}
	if !cfg.Producer.Return.Successes || !cfg.Producer.Return.Errors {
		t.Error("producer must return successes and errors")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
