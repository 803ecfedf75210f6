//go:build no_mqtt

package main

import (
	"log/slog"

	"taskomat/internal/comm"
	"taskomat/internal/task"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *task.Executor, _ *comm.Bus, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
