package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	modbus "github.com/fieldbus-tools/modbus-server"
)

func main() {
	app := &cli.App{
		Name:  "modbus-server",
		Usage: "Run a Modbus server over TCP, UDP, Unix, TLS, RTU or ASCII",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "transport",
				Aliases:  []string{"t"},
				Usage:    "Transport: tcp, udp, unix, tls, rtu, or ascii",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Listen address (tcp/udp: host:port, unix: socket path, rtu/ascii: serial device)",
				Value:   "localhost:5020",
			},
			&cli.IntFlag{
				Name:  "slave-id",
				Usage: "Slave/unit ID this server answers as in single-slave mode",
				Value: 1,
			},
			&cli.IntFlag{Name: "baud", Usage: "Baud rate (rtu/ascii only)", Value: 19200},
			&cli.IntFlag{Name: "data-bits", Usage: "Data bits (rtu/ascii only)", Value: 8},
			&cli.BoolFlag{Name: "broadcast", Usage: "Enable broadcast (slave id 0) handling"},
			&cli.BoolFlag{Name: "ignore-missing-slaves", Usage: "Drop requests for unknown slave ids instead of answering with an exception"},
			&cli.StringFlag{Name: "tls-cert", Usage: "TLS certificate file (tls only)"},
			&cli.StringFlag{Name: "tls-key", Usage: "TLS key file (tls only)"},
			&cli.StringFlag{Name: "tls-client-ca", Usage: "Client CA file for mutual TLS (tls only)"},
			&cli.IntFlag{Name: "holding-registers", Usage: "Holding register bank size", Value: 65535},
			&cli.IntFlag{Name: "input-registers", Usage: "Input register bank size", Value: 65535},
			&cli.IntFlag{Name: "coils", Usage: "Coil bank size", Value: 65535},
			&cli.IntFlag{Name: "discrete-inputs", Usage: "Discrete input bank size", Value: 65535},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	slaveCtx := modbus.NewSlaveContext(modbus.SlaveContextConfig{
		ID:                   byte(c.Int("slave-id")),
		HoldingRegistersSize: uint16(c.Int("holding-registers")),
		InputRegistersSize:   uint16(c.Int("input-registers")),
		CoilsSize:            uint16(c.Int("coils")),
		DiscreteInputsSize:   uint16(c.Int("discrete-inputs")),
	})
	serverCtx := modbus.NewSingleServerContext(slaveCtx)

	policy := modbus.Policy{
		BroadcastEnable:     c.Bool("broadcast"),
		IgnoreMissingSlaves: c.Bool("ignore-missing-slaves"),
	}
	srv := modbus.NewServer(serverCtx, modbus.NewFunctionRegistry(), policy)

	logger := log.New(os.Stdout, fmt.Sprintf("modbus-server[%s]: ", c.String("transport")), log.LstdFlags)

	go func() {
		var err error
		switch c.String("transport") {
		case "tcp":
			err = srv.ServeTCP(modbus.TCPConfig{Address: c.String("address"), Logger: logger})
		case "udp":
			err = srv.ServeUDP(modbus.UDPConfig{Address: c.String("address"), Logger: logger})
		case "unix":
			err = srv.ServeUnix(modbus.UnixConfig{Path: c.String("address"), Logger: logger})
		case "tls":
			err = srv.ServeTLS(modbus.TLSConfig{
				Address:      c.String("address"),
				CertFile:     c.String("tls-cert"),
				KeyFile:      c.String("tls-key"),
				ClientCAFile: c.String("tls-client-ca"),
				Logger:       logger,
			})
		case "rtu":
			serialCfg := modbus.DefaultSerialConfig(c.String("address"))
			serialCfg.BaudRate = c.Int("baud")
			serialCfg.DataBits = c.Int("data-bits")
			serialCfg.Timeout = 5 * time.Second
			serialCfg.Logger = logger
			err = srv.ServeRTU(serialCfg)
		case "ascii":
			serialCfg := modbus.DefaultSerialConfig(c.String("address"))
			serialCfg.BaudRate = c.Int("baud")
			serialCfg.DataBits = c.Int("data-bits")
			serialCfg.Timeout = 5 * time.Second
			serialCfg.Logger = logger
			err = srv.ServeASCII(serialCfg)
		default:
			err = fmt.Errorf("invalid transport %q: must be tcp, udp, unix, tls, rtu, or ascii", c.String("transport"))
		}
		if err != nil {
			logger.Printf("server exited: %v", err)
		}
	}()

	srv.WaitStarted()
	fmt.Printf("modbus server running (%s %s)\n", c.String("transport"), c.String("address"))
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	return srv.Stop()
}
