// Command lanbridged runs the LAN-bridging room daemon: it hosts or joins
// one room at a time, bridging a Minecraft LAN game across an overlay
// network and re-announcing it as a local LAN world on the Guest side.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lanbridge/config"
	"lanbridge/logger"
	"lanbridge/mcnet"
	"lanbridge/overlay"
	"lanbridge/registry"
	"lanbridge/room"
	"lanbridge/stats"
)

const version = "0.1.0"

var (
	configPath string
	playerName string
	launcher   string
)

func main() {
	root := &cobra.Command{
		Use:   "lanbridged",
		Short: "Bridge a Minecraft LAN game across an overlay network",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults apply if omitted)")
	root.PersistentFlags().StringVar(&playerName, "name", "", "display name announced to the room")
	root.PersistentFlags().StringVar(&launcher, "launcher", "", "custom launcher string appended to the vendor tag")

	root.AddCommand(hostCmd(), guestCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("lanbridged %s\n", version)
			return nil
		},
	}
}

func hostCmd() *cobra.Command {
	var port uint16

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Start a room as its HOST, announcing a new room code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctrl *room.Controller) error {
				return ctrl.StartHost(port, requirePlayerName(), launcher)
			})
		},
	}
	cmd.Flags().Uint16Var(&port, "scaffolding-port", 13448, "TCP port the Scaffolding server listens on")
	return cmd
}

func guestCmd() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "guest",
		Short: "Join an existing room as a GUEST",
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" {
				return fmt.Errorf("lanbridged: --code is required")
			}
			return run(func(ctrl *room.Controller) error {
				return ctrl.StartGuest(code, requirePlayerName(), launcher)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "room code announced by the HOST")
	return cmd
}

func requirePlayerName() string {
	if playerName != "" {
		return playerName
	}
	return "Player"
}

// run loads configuration, wires the daemon's components together, starts
// the given track, and blocks until the room reaches a terminal state or
// the process receives an interrupt.
func run(start func(ctrl *room.Controller) error) error {
	log := logger.Default()

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	st := stats.New()
	reg := registry.New(st)

	listener, err := mcnet.NewListener()
	if err != nil {
		log.Warnf("LAN beacon listener unavailable: %v", err)
	} else {
		done := make(chan struct{})
		defer close(done)
		go func() {
			for {
				select {
				case s := <-listener.Sightings:
					reg.ObserveSighting(s)
				case <-done:
					return
				}
			}
		}()
		go func() {
			if err := listener.Run(done); err != nil {
				log.Warnf("LAN beacon listener stopped: %v", err)
			}
		}()
		defer listener.Close()
	}

	sweepDone := make(chan struct{})
	defer close(sweepDone)
	go reg.RunSweepLoop(sweepDone)
	go reg.RunPingerLoop(sweepDone)

	newNode := func() overlay.NetworkNode {
		return overlay.NewProcessAdapter(room.NewProcessGroup())
	}
	ctrl := room.New(cfg, st, reg, newNode)

	done := make(chan struct{})
	ctrl.OnStateChanged(func(status room.RoomStatus) {
		log.Infof("room: state=%s role=%s error=%q", status.State, status.Role, status.Error)
		if status.State == room.StateError {
			close1(done)
		}
	})

	if err := start(ctrl); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		log.Infof("shutting down")
	case <-done:
	}

	ctrl.Stop()
	return nil
}

// close1 closes done at most once; OnStateChanged may fire StateError
// repeatedly if the caller calls Retry and fails again.
func close1(done chan struct{}) {
	select {
	case <-done:
	default:
		close(done)
	}
}
