package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	logger "github.com/d2r2/go-logger"
	"github.com/google/shlex"

	"rdkstepper/host/drive"
	"rdkstepper/host/serial"
	"rdkstepper/protocol"
)

var lg = logger.NewPackageLogger("host", logger.InfoLevel)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path, or tcp://host:port for the simulator")
	baud    = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	verbose = flag.Bool("verbose", false, "Enable verbose output")
)

func main() {
	defer logger.FinalizeLogger()
	flag.Parse()
	if *verbose {
		logger.ChangePackageLogLevel("host", logger.DebugLevel)
	}

	fmt.Println("RDK Stepper Host")
	fmt.Println("================")

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	d := drive.NewDrive()
	lg.Infof("Connecting to %s", *device)
	if err := d.ConnectWithConfig(cfg); err != nil {
		lg.Fatalf("Failed to connect: %v", err)
	}
	defer d.Close()
	fmt.Println("Connected to stepper drive")

	c := &console{drive: d}
	if err := c.loadDescriptions(); err != nil {
		lg.Fatalf("Failed to read parameter table: %v", err)
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		args, err := shlex.Split(scanner.Text())
		if err != nil {
			lg.Errorf("Bad input: %v", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" || args[0] == "q" {
			return
		}
		if err := c.exec(args[0], args[1:]); err != nil {
			lg.Errorf("%s: %v", args[0], err)
		}
	}

	if err := scanner.Err(); err != nil {
		lg.Fatalf("Error reading input: %v", err)
	}
}

type console struct {
	drive *drive.Drive
	descs []drive.ParamDesc
	items []drive.DataItem

	printing bool
}

func (c *console) loadDescriptions() error {
	ids, err := c.drive.ParamIDs()
	if err != nil {
		return err
	}
	c.descs = c.descs[:0]
	for _, id := range ids {
		desc, err := c.drive.Describe(id)
		if err != nil {
			return err
		}
		lg.Debugf("param %s: %+v", protocol.ParamName(id), desc)
		c.descs = append(c.descs, desc)
	}
	c.items, err = c.drive.DataItems()
	return err
}

func (c *console) exec(cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		printHelp()
	case "params":
		return c.listParams()
	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: get <param>")
		}
		desc, err := c.lookup(args[0])
		if err != nil {
			return err
		}
		v, err := c.drive.Get(desc.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", protocol.ParamName(desc.ID), formatParam(desc, v))
	case "set":
		if len(args) != 2 {
			return fmt.Errorf("usage: set <param> <value>")
		}
		desc, err := c.lookup(args[0])
		if err != nil {
			return err
		}
		if desc.ReadOnly() {
			return fmt.Errorf("%s is read-only", args[0])
		}
		v, err := parseParam(desc, args[1])
		if err != nil {
			return err
		}
		if err := c.drive.Set(desc.ID, v, desc.Size); err != nil {
			return err
		}
		got, err := c.drive.Get(desc.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", protocol.ParamName(desc.ID), formatParam(desc, got))
	case "run":
		return c.drive.Run()
	case "stop":
		return c.drive.Stop()
	case "estop":
		return c.drive.EmergencyStop()
	case "save":
		return c.drive.Save()
	case "load":
		return c.drive.Load()
	case "items":
		for _, it := range c.items {
			fmt.Printf("  0x%02x %-16s %d bytes\n", it.ID, protocol.DataName(it.ID), it.Size)
		}
	case "stream":
		return c.stream(args)
	default:
		return fmt.Errorf("unknown command (type 'help' for available commands)")
	}
	return nil
}

func (c *console) lookup(name string) (drive.ParamDesc, error) {
	id, ok := protocol.ParamByName(name)
	if !ok {
		n, err := strconv.ParseUint(name, 0, 8)
		if err != nil {
			return drive.ParamDesc{}, fmt.Errorf("unknown parameter %q", name)
		}
		id = byte(n)
	}
	for _, d := range c.descs {
		if d.ID == id {
			return d, nil
		}
	}
	return drive.ParamDesc{}, fmt.Errorf("drive has no parameter 0x%02x", id)
}

func (c *console) listParams() error {
	for _, desc := range c.descs {
		v, err := c.drive.Get(desc.ID)
		if err != nil {
			return err
		}
		access := "rw"
		if desc.ReadOnly() {
			access = "ro"
		}
		fmt.Printf("  0x%02x %-18s %s %s\n", desc.ID, protocol.ParamName(desc.ID), access, formatParam(desc, v))
	}
	return nil
}

// stream enables the named items and starts the stream, or stops it with
// "stream off"
func (c *console) stream(args []string) error {
	if len(args) == 1 && args[0] == "off" {
		return c.drive.StopStream()
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: stream <item>... | stream off")
	}

	want := make(map[byte]bool)
	for _, name := range args {
		id, ok := protocol.DataByName(name)
		if !ok {
			return fmt.Errorf("unknown data item %q", name)
		}
		want[id] = true
	}
	var enabled []drive.DataItem
	for _, it := range c.items {
		if want[it.ID] {
			if err := c.drive.EnableItem(it.ID); err != nil {
				return err
			}
			enabled = append(enabled, it)
		} else if err := c.drive.DisableItem(it.ID); err != nil {
			return err
		}
	}

	samples, err := c.drive.StartStream(enabled)
	if err != nil {
		return err
	}
	if !c.printing {
		c.printing = true
		go c.printSamples(samples)
	}
	return nil
}

func (c *console) printSamples(samples <-chan drive.Sample) {
	for s := range samples {
		var b strings.Builder
		for _, it := range c.items {
			if v, ok := s[it.ID]; ok {
				fmt.Fprintf(&b, "%s=%s ", protocol.DataName(it.ID), formatItem(it, v))
			}
		}
		lg.Info(b.String())
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  params                 - List parameters and values")
	fmt.Println("  get <param>            - Read a parameter (name or id)")
	fmt.Println("  set <param> <value>    - Write a parameter, e.g. set target_current 1.2A")
	fmt.Println("  run | stop | estop     - Enable, stop or emergency stop the motor")
	fmt.Println("  save | load            - Save or restore the parameters")
	fmt.Println("  items                  - List real-time data items")
	fmt.Println("  stream <item>...       - Stream data items; 'stream off' stops")
	fmt.Println("  quit/exit/q            - Exit the program")
	fmt.Println()
}
