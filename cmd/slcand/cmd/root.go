package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roffe/slcan"
	"github.com/roffe/slcan/adapter"
	"github.com/roffe/slcan/pkg/config"
	"github.com/roffe/slcan/pkg/line"
)

var rootCmd = &cobra.Command{
	Use:   "slcand",
	Short: "Lawicel SLCAN device",
	Long: `slcand answers the Lawicel SLCAN protocol on a com-port or websocket
and bridges it to a CAN bus adapter.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

const (
	flagConfig    = "config"
	flagPort      = "port"
	flagBaudrate  = "baudrate"
	flagListen    = "listen"
	flagAdapter   = "adapter"
	flagInterface = "interface"
	flagBusPort   = "bus-port"
	flagDebug     = "debug"
	flagDump      = "dump"
	flagRxTimeout = "rx-timeout"
)

func init() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)

	addFlags(rootCmd.PersistentFlags())
}

func addFlags(pf *pflag.FlagSet) {
	pf.StringP(flagConfig, "c", "", "config file")
	pf.StringP(flagPort, "p", "*", "com-port to serve on, * = select")
	pf.IntP(flagBaudrate, "b", line.DefaultBaudrate, "baudrate")
	pf.StringP(flagListen, "l", "", "serve on a websocket at this address instead of a com-port")
	pf.StringP(flagAdapter, "a", "Virtual", "what adapter to use")
	pf.StringP(flagInterface, "i", "", "CAN interface for SocketCAN")
	pf.String(flagBusPort, "", "com-port of the SLCan adapter")
	pf.BoolP(flagDebug, "d", false, "debug mode")
	pf.Bool(flagDump, false, "print every frame on the bus")
	pf.Duration(flagRxTimeout, 0, "how long each poll waits for the bus")
}

// loadConfig reads the config file and applies the flags given on the
// command line over it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, err := flags.GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	strs := map[string]*string{
		flagPort:      &cfg.Line.Port,
		flagListen:    &cfg.Line.Listen,
		flagAdapter:   &cfg.Bus.Adapter,
		flagInterface: &cfg.Bus.Interface,
		flagBusPort:   &cfg.Bus.Port,
	}
	for name, dst := range strs {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed(flagBaudrate) {
		cfg.Line.Baudrate, _ = flags.GetInt(flagBaudrate)
	}
	if flags.Changed(flagDebug) {
		cfg.Debug, _ = flags.GetBool(flagDebug)
	}
	if flags.Changed(flagRxTimeout) {
		cfg.Device.RxTimeout, _ = flags.GetDuration(flagRxTimeout)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	onEvent := eventPrinter(cfg.Debug)

	bus, err := adapter.New(cfg.Bus.Adapter, cfg.Adapter(onEvent))
	if err != nil {
		return err
	}
	if dump, _ := cmd.Flags().GetBool(flagDump); dump {
		bus = newTapBus(bus, isTerminal(os.Stdout))
	}
	engineCfg := cfg.Engine(onEvent)

	if cfg.Line.Listen != "" {
		return line.ListenAndServe(ctx, cfg.Line.Listen, func(ctx context.Context, s *line.Stream) error {
			return serve(ctx, s, bus, engineCfg)
		})
	}

	port := cfg.Line.Port
	if port == "" || port == "*" {
		if port, err = selectPort(); err != nil {
			return err
		}
	}
	if details, err := line.FindPort(port); err == nil {
		log.Printf("port: %s", line.Describe(details))
	}
	stream, err := line.OpenSerial(ctx, port, cfg.Line.Baudrate)
	if err != nil {
		return err
	}
	defer stream.Close()
	log.Printf("serving %s on %s", cfg.Bus.Adapter, port)
	return serve(ctx, stream, bus, engineCfg)
}

func serve(ctx context.Context, l slcan.Line, bus slcan.Bus, cfg *slcan.Config) error {
	e := slcan.New(l, bus, cfg)
	err := e.Run(ctx)
	log.Println(e.Stats())
	return err
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func selectPort() (string, error) {
	if !isTerminal(os.Stdin) {
		names, _ := line.PortNames()
		return "", fmt.Errorf("no com-port given, available: %s", strings.Join(names, ", "))
	}
	ports, err := line.Ports()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errors.New("no serial ports found")
	}
	var items []string
	for _, p := range ports {
		items = append(items, line.Describe(p))
	}
	prompt := promptui.Select{
		Label: "Select com-port",
		Items: items,
	}
	i, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed %v", err)
	}
	return ports[i].Name, nil
}
