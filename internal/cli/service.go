package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// program adapts the gateway to the kardianos/service lifecycle.
type program struct {
	configPath string
	cancel     context.CancelFunc
	done       chan error
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := runGateway(ctx, p.configPath)
		if err != nil && ctx.Err() == nil {
			// Exit so the service manager restarts us.
			log.Error().Err(err).Msg("Gateway failed")
			os.Exit(1)
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	if err := <-p.done; err != nil {
		log.Error().Err(err).Msg("Gateway stopped with error")
	}
	return nil
}

func serviceConfig(configPath string) *service.Config {
	args := []string{"service", "run"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return &service.Config{
		Name:        "vision-gateway",
		DisplayName: "Vision Gateway",
		Description: "Camera device sessions and video analytics pipelines for the edge",
		Arguments:   args,
	}
}

var serviceCmd = &cobra.Command{
	Use:       "service <install|uninstall|start|stop|restart|run>",
	Short:     "Manage the gateway as a system service",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"install", "uninstall", "start", "stop", "restart", "run"},
	RunE: func(cmd *cobra.Command, args []string) error {
		prg := &program{configPath: cfgFile}
		s, err := service.New(prg, serviceConfig(cfgFile))
		if err != nil {
			return fmt.Errorf("create service: %w", err)
		}

		action := args[0]
		if action == "run" {
			return s.Run()
		}
		if err := service.Control(s, action); err != nil {
			return fmt.Errorf("service %s: %w", action, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Service action '%s' completed successfully.\n", action)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)
}
