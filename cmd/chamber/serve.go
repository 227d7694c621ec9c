// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"chamber/internal/actuator"
	"chamber/internal/chamber"
	"chamber/internal/config"
	"chamber/internal/controller"
	"chamber/internal/datalog"
	"chamber/internal/mqttpub"
	"chamber/internal/profile"
	"chamber/internal/runstate"
	"chamber/internal/sensors"
	"chamber/internal/store"
	"chamber/internal/web"
	"chamber/pkg/appctx"
	"chamber/pkg/eventbus"
	"chamber/pkg/logger"
	"chamber/pkg/rootserv"
	"chamber/pkg/service"
	"chamber/pkg/sysmon"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	rootdir := projectRoot(cmd)

	if err := logger.Init(filepath.Join(rootdir, "var/logs/chamber.log")); err != nil {
		return err
	}
	defer logger.Close()
	log := logger.New("Main")

	appConf, err := config.Load(configPath(cmd, rootdir))
	if err != nil {
		return err
	}

	// use conf to pass eventbus to whoever needs it
	appConf.EventBus = eventbus.New()
	appConf.RootDir = rootdir

	st, err := store.Open(inRoot(rootdir, appConf.DataLog.DBPath))
	if err != nil {
		return err
	}
	closed, err := st.CloseOpenCycles(context.Background(), time.Now())
	if err != nil {
		return err
	}
	if closed > 0 {
		log.Warn("Closed %d cycle(s) left running by a previous shutdown", closed)
	}

	roster, err := sensors.LoadRoster(inRoot(rootdir, appConf.Sensors.RosterPath))
	if err != nil {
		return err
	}
	src, err := sensors.New(roster, appConf.Sensors.Mock)
	if err != nil {
		return err
	}
	if c, ok := src.(interface{ Close() }); ok {
		defer c.Close()
	}
	if id := appConf.Control.ControlSensor; id != "" && !slices.Contains(src.IDs(), id) {
		return fmt.Errorf("control sensor %q is not in the roster", id)
	}

	ctx, ctxCancel := appctx.New()
	defer ctxCancel()

	var runnables []service.Runnable

	port, runner, err := newActuator(appConf.Actuator)
	if err != nil {
		return err
	}
	if runner != nil {
		runnables = append(runnables, runner)
	}

	// init services
	state := runstate.New(appConf.EventBus)
	engine := datalog.New(appConf.DataLog, st, src, state, appConf.EventBus)
	ctrl := controller.New(appConf.Control, appConf.DataLog.ReadTimeout(), src, port, state, appConf.EventBus)
	ch := chamber.New(engine, ctrl, state, profile.LimitsFrom(appConf.Profile))

	server := rootserv.New(appConf.HTTPAddr)
	webService := web.New(ch, appConf.EventBus, rootdir, appConf.DataLog.Interval())
	sysMonitorService := sysmon.New(filepath.Dir(st.Path())).WithDatabase(st.Size)

	// attach web handler enabled services
	server.Attach("/chamber", "Chamber control and data logging", webService.Handler())
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysMonitorService)

	runnables = append(runnables, engine, ctrl, webService, server)

	if appConf.MQTT.Broker != "" {
		pub, err := mqttpub.NewRealPublisher(appConf.MQTT.Broker, appConf.MQTT.ClientID, appConf.MQTT.TopicPrefix)
		if err != nil {
			// the chamber runs without a broker
			log.Error("MQTT disabled: %v", err)
		} else {
			runnables = append(runnables, mqttpub.New(pub, appConf.EventBus, appConf.MQTT.TopicPrefix))
		}
	}

	log.Info("Root: %s, sensors: %v, actuator: %s", rootdir, src.IDs(), appConf.Actuator.Backend)

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, runnables)

	// waits for all services to stop
	code := <-exitCh
	appConf.EventBus.Close()
	if code != 0 {
		logger.Close()
		os.Exit(code)
	}
	return nil
}

// newActuator builds the configured port. Backends that time-proportion
// their outputs also return a Runnable that must be started.
func newActuator(conf config.ActuatorConfig) (actuator.Port, service.Runnable, error) {
	switch conf.Backend {
	case "mock":
		return actuator.NewMock(), nil, nil
	case "gpio":
		window := time.Duration(conf.WindowSeconds) * time.Second
		g, err := actuator.NewGPIO(conf.Chip, conf.HeatLine, conf.CoolLine, window)
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	case "phidgets":
		return actuator.NewPhidgets(conf.PhidgetsAddr, conf.HeatChannel, conf.CoolChannel, conf.HubPort), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown actuator backend %q", conf.Backend)
}
