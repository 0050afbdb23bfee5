package config_test

import (
	"errors"
	"testing"

	"github.com/tkoehlman/vadgate/internal/config"
	"github.com/tkoehlman/vadgate/pkg/capture"
	capturemock "github.com/tkoehlman/vadgate/pkg/capture/mock"
	"github.com/tkoehlman/vadgate/pkg/vad"
	vadmock "github.com/tkoehlman/vadgate/pkg/vad/mock"
)

func TestRegistry_CreateVAD(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	engine := &vadmock.Engine{}
	reg.RegisterVAD(config.BackendEnergy, func(cfg *config.Config) (vad.Engine, error) {
		return engine, nil
	})

	cfg := baseConfig()
	cfg.VAD.Backend = config.BackendEnergy

	got, err := reg.CreateVAD(cfg)
	if err != nil {
		t.Fatalf("CreateVAD: %v", err)
	}
	if got != engine {
		t.Error("CreateVAD returned a different engine than the factory built")
	}
}

func TestRegistry_CreateVAD_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	cfg := baseConfig()
	cfg.VAD.Backend = config.BackendNeural

	_, err := reg.CreateVAD(cfg)
	if !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("error should wrap ErrNotRegistered, got: %v", err)
	}
}

func TestRegistry_CreateVADBackend_IgnoresSelectedBackend(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	primary := &vadmock.Engine{}
	fallback := &vadmock.Engine{}
	reg.RegisterVAD(config.BackendNeural, func(cfg *config.Config) (vad.Engine, error) {
		return primary, nil
	})
	reg.RegisterVAD(config.BackendEnergy, func(cfg *config.Config) (vad.Engine, error) {
		return fallback, nil
	})

	cfg := baseConfig()
	cfg.VAD.Backend = config.BackendNeural

	got, err := reg.CreateVADBackend(cfg, config.BackendEnergy)
	if err != nil {
		t.Fatalf("CreateVADBackend: %v", err)
	}
	if got != fallback {
		t.Error("CreateVADBackend ignored the requested name")
	}
}

func TestRegistry_CreateCapture(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	source := &capturemock.Source{}
	reg.RegisterCapture(config.CaptureReplay, func(cfg *config.Config) (capture.Source, error) {
		return source, nil
	})

	cfg := baseConfig()
	cfg.Capture.Kind = config.CaptureReplay

	got, err := reg.CreateCapture(cfg)
	if err != nil {
		t.Fatalf("CreateCapture: %v", err)
	}
	if got != source {
		t.Error("CreateCapture returned a different source than the factory built")
	}
}

func TestRegistry_CreateCapture_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateCapture(baseConfig())
	if !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("error should wrap ErrNotRegistered, got: %v", err)
	}
}
