package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.bug.st/serial"

	"github.com/gwillem/rover/pkg/drive"
	"github.com/gwillem/rover/pkg/hw"
	"github.com/gwillem/rover/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	SkipPulse bool `long:"skip-pulse" description:"Do not pulse the motor outputs"`
}

// pulseDuty is just above neutral, enough to twitch a wheel.
const pulseDuty = drive.Neutral + 10

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Rover Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := robot.LoadOrDefault(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Step 1: find the bridge board
	port, err := choosePort(findBridges())
	if err != nil {
		return formErr(err)
	}
	cfg.Port = port
	if cfg.Port != robot.SimPort && cfg.BaudRate == 0 {
		cfg.BaudRate = hw.DefaultBaudRate
	}

	// Step 2: bring up PWM and sensors
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Sensor bring-up ━━━"))
	fmt.Println()

	h, err := robot.OpenHardware(cfg)
	if err != nil {
		return fmt.Errorf("open hardware on %s: %w", cfg.Port, err)
	}
	ctx := context.Background()
	rover, err := robot.NewRover(ctx, cfg, h, robot.Options{Logf: func(string, ...any) {}})
	if err != nil {
		return err
	}
	defer rover.Close()

	fmt.Println(sensorTable(rover, cfg))

	// Step 3: check the motor wiring
	if !c.SkipPulse {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Motor outputs ━━━"))
		fmt.Println()
		if err := pulseOutputs(rover.Hardware(), cfg.Outputs); err != nil {
			return formErr(err)
		}
	}

	// Step 4: options
	fmt.Println()
	guard := cfg.Guard
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the obstacle guard?").
				Description("Refuse to drive toward anything in the Danger zone").
				Value(&guard),
		),
	)
	if err := form.Run(); err != nil {
		return formErr(err)
	}
	cfg.Guard = guard

	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start driving with: " + headerStyle.Render("rover drive"))

	return nil
}

type bridgeInfo struct {
	port    string
	version string
}

func findBridges() []bridgeInfo {
	fmt.Println("Scanning for bridge boards...")
	fmt.Println()

	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var found []bridgeInfo
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		b, err := hw.OpenBridge(port, hw.DefaultBaudRate, nil)
		if err != nil {
			continue
		}
		version, err := b.Version()
		b.Close()
		if err != nil {
			continue
		}

		fmt.Printf("  Found bridge %s on %s\n", version, port)
		found = append(found, bridgeInfo{port: port, version: version})
	}

	if len(found) == 0 {
		fmt.Println("No bridge board found.")
		fmt.Println("Make sure it is connected, or use the simulator.")
	}
	return found
}

// formErr turns an aborted form into a clean return.
func formErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		fmt.Println()
		fmt.Println(dimStyle.Render("Setup aborted, configuration not saved."))
		return nil
	}
	return err
}

func choosePort(bridges []bridgeInfo) (string, error) {
	var options []huh.Option[string]
	for _, b := range bridges {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", b.port, b.version), b.port))
	}
	options = append(options, huh.NewOption("Simulator (no hardware)", robot.SimPort))

	port := robot.SimPort
	if len(bridges) > 0 {
		port = bridges[0].port
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which board drives the rover?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return port, nil
}

func sensorTable(rover *robot.Rover, cfg *robot.Config) string {
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableLabelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableOKStyle := successStyle.Padding(0, 1)
	tableFailStyle := failStyle.Padding(0, 1)

	snap := rover.Monitor.Bank().Read(context.Background())

	ok := make([]bool, len(rover.BringUp))
	rows := make([][]string, 0, len(rover.BringUp))
	for i, res := range rover.BringUp {
		sc := cfg.Sensors[res.Index]
		status := "ready"
		distance := "-"
		if res.Err != nil {
			status = res.Err.Error()
		} else {
			ok[i] = true
			if est, found := snap.ByLabel(sc.Label); found {
				distance = fmt.Sprintf("%.0f mm", est.Distance)
			}
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", res.Index),
			sc.Label,
			fmt.Sprintf("%d", sc.XShut),
			fmt.Sprintf("0x%02x", res.Address),
			status,
			distance,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Sensor", "Label", "XSHUT", "Address", "Status", "Distance").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 1:
				return tableLabelStyle
			case 4:
				if row >= 0 && row < len(ok) && ok[row] {
					return tableOKStyle
				}
				return tableFailStyle
			default:
				return tableCellStyle
			}
		})
	return t.Render()
}

// pulseOutputs twitches each output in turn and asks whether it moved. An
// output that cannot be reset to zero aborts the check.
func pulseOutputs(d drive.Driver, outputs robot.Calibration) error {
	var dead []string
	for _, pin := range outputs.Pins() {
		name, _, _ := outputs.ByPin(pin)

		fmt.Printf("  Pulsing %s on pin %d...\n", name, pin)
		if err := d.SetDuty(pin, pulseDuty); err != nil {
			fmt.Println(failStyle.Render(fmt.Sprintf("  %s: %v", name, err)))
			dead = append(dead, string(name))
			if err := d.SetDuty(pin, 0); err != nil {
				return fmt.Errorf("reset %s (pin %d): %w", name, pin, err)
			}
			continue
		}
		time.Sleep(500 * time.Millisecond)
		if err := d.SetDuty(pin, 0); err != nil {
			return fmt.Errorf("reset %s (pin %d): %w", name, pin, err)
		}

		moved := true
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Did a wheel move for %s?", name)).
					Value(&moved),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}
		if !moved {
			dead = append(dead, string(name))
		}
	}

	if len(dead) > 0 {
		fmt.Println(failStyle.Render("Check the wiring of: " + strings.Join(dead, ", ")))
		return nil
	}
	fmt.Println(successStyle.Render("All outputs respond."))
	return nil
}
