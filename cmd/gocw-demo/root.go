// cmd/gocw-demo/root.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/n7dr/gocw"
	"github.com/n7dr/gocw/internal/audio"
	"github.com/n7dr/gocw/internal/config"
	"github.com/n7dr/gocw/internal/dsp"
	"github.com/n7dr/gocw/internal/receiver"
	"github.com/n7dr/gocw/signalctl"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "gocw-demo",
	Short: "Send and receive CW (Morse code) using the gocw library",
	Long:  `A demo binary exercising gocw: sends an optional greeting, then listens on an audio device and decodes CW into text.`,
	RunE:  runDemo,
}

// runDemo wires an audio capture -> Goertzel -> tone detector pipeline into
// a gocw.Instance's receiver, and optionally sends a configured string
// through the instance's sender before listening begins.
func runDemo(_ *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if settings.Debug {
		fmt.Printf("Config: sample_rate=%.0f, tone_frequency=%.0f, backend=%s, send_speed=%d, receive_speed=%d\n",
			settings.SampleRate, settings.ToneFrequency, settings.Backend, settings.SendSpeed, settings.ReceiveSpeed)
	}

	backend := gocw.BackendPCM
	if settings.Backend == "console" {
		backend = gocw.BackendConsole
	}

	inst := gocw.New(gocw.Options{
		Backend:       backend,
		ConsoleDevice: settings.ConsoleDevice,
		CurtisB:       settings.CurtisB,
	})

	params := inst.Params()
	if err := params.SetSendSpeed(settings.SendSpeed); err != nil {
		return fmt.Errorf("set send speed: %w", err)
	}
	if err := params.SetReceiveSpeed(settings.ReceiveSpeed); err != nil {
		return fmt.Errorf("set receive speed: %w", err)
	}
	if err := params.SetFrequency(int(settings.ToneFrequency)); err != nil {
		return fmt.Errorf("set frequency: %w", err)
	}
	if err := params.SetVolume(settings.Volume); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	if err := params.SetGap(settings.Gap); err != nil {
		return fmt.Errorf("set gap: %w", err)
	}
	if err := params.SetTolerance(settings.Tolerance); err != nil {
		return fmt.Errorf("set tolerance: %w", err)
	}
	if err := params.SetWeighting(settings.Weighting); err != nil {
		return fmt.Errorf("set weighting: %w", err)
	}
	if err := params.SetAdaptive(settings.Adaptive); err != nil {
		return fmt.Errorf("set adaptive: %w", err)
	}

	if err := inst.Start(); err != nil {
		return fmt.Errorf("start instance: %w", err)
	}
	defer inst.Delete()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := signalctl.Watch([]os.Signal{syscall.SIGINT, syscall.SIGTERM}, signalctl.ModeTerminate, func() {
		fmt.Println("\nshutting down...")
		inst.Stop()
		cancel()
	}, nil)
	defer watcher.Stop()

	if settings.SendText != "" {
		if err := sendGreeting(inst, settings.SendText); err != nil {
			return fmt.Errorf("send greeting: %w", err)
		}
	}

	audioConfig := audio.Config{
		DeviceIndex: settings.DeviceIndex,
		SampleRate:  uint32(settings.SampleRate),
		Channels:    uint32(settings.Channels),
		BufferSize:  uint32(settings.BufferSize),
	}
	capture := audio.New(audioConfig)
	if err := capture.Init(); err != nil {
		return fmt.Errorf("init audio: %w", err)
	}
	defer func() {
		if err := capture.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing audio capture: %v\n", err)
		}
	}()

	if settings.Debug {
		if devices, err := capture.ListDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not list audio devices: %v\n", err)
		} else {
			fmt.Println("Available audio devices:")
			for i, dev := range devices {
				fmt.Printf("  [%d] %s\n", i, dev.Name())
			}
		}
	}

	goertzel, err := dsp.NewGoertzel(dsp.GoertzelConfig{
		TargetFrequency: settings.ToneFrequency,
		SampleRate:      settings.SampleRate,
		BlockSize:       settings.BlockSize,
	})
	if err != nil {
		return fmt.Errorf("init goertzel: %w", err)
	}

	detector, err := dsp.NewDetector(dsp.DetectorConfig{
		Threshold:       settings.Threshold,
		Hysteresis:      settings.Hysteresis,
		OverlapPct:      settings.OverlapPct,
		AGCEnabled:      settings.AGCEnabled,
		AGCDecay:        settings.AGCDecay,
		AGCAttack:       settings.AGCAttack,
		AGCWarmupBlocks: settings.AGCWarmupBlocks,
	}, goertzel)
	if err != nil {
		return fmt.Errorf("init detector: %w", err)
	}

	detector.SetCallback(func(event dsp.ToneEvent) {
		ts := toReceiverTimestamp(event)
		var recvErr error
		if event.ToneOn {
			recvErr = inst.Receiver().StartTone(&ts)
		} else {
			recvErr = inst.Receiver().EndTone(&ts)
		}
		if recvErr != nil && settings.Debug {
			fmt.Fprintf(os.Stderr, "receiver: %v\n", recvErr)
		}
		if settings.Debug {
			if event.ToneOn {
				fmt.Printf("[TONE ON]  magnitude=%.3f\n", event.Magnitude)
			} else {
				fmt.Printf("[TONE OFF] duration=%v magnitude=%.3f\n", event.Duration, event.Magnitude)
			}
		}
	})

	capture.SetCallback(func(samples []float32) {
		detector.Process(samples)
	})

	fmt.Println("Listening for CW... Press Ctrl+C to stop.")
	if err := capture.Start(ctx); err != nil {
		return fmt.Errorf("start audio capture: %w", err)
	}

	<-ctx.Done()

	if err := capture.Stop(); err != nil && err != audio.ErrNotRunning {
		fmt.Fprintf(os.Stderr, "error stopping audio capture: %v\n", err)
	}

	fmt.Println("gocw-demo stopped.")
	return nil
}

// sendGreeting sends text uppercased, character by character, through the
// instance's sender, draining the tone queue between characters so the
// whole string is fully enqueued (spec.md §4.5/§4.6's send path, driven
// synchronously here since the demo has nothing else to do meanwhile).
func sendGreeting(inst *gocw.Instance, text string) error {
	for _, r := range strings.ToUpper(text) {
		if err := inst.Sender().SendCharacter(byte(r)); err != nil {
			return err
		}
	}
	return inst.FlushQueue()
}

func toReceiverTimestamp(event dsp.ToneEvent) receiver.Timestamp {
	return receiver.Timestamp{
		Sec:  event.Timestamp.Unix(),
		Usec: int32(event.Timestamp.Nanosecond() / 1000),
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "execution error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().Float64P("frequency", "f", 600, "CW tone frequency in Hz")
	rootCmd.PersistentFlags().IntP("send-speed", "s", 18, "send speed in WPM")
	rootCmd.PersistentFlags().IntP("receive-speed", "r", 12, "initial receive speed estimate in WPM")
	rootCmd.PersistentFlags().StringP("send-text", "t", "", "text to send once at startup")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	cobra.CheckErr(viper.BindPFlag("device_index", rootCmd.PersistentFlags().Lookup("device")))
	cobra.CheckErr(viper.BindPFlag("tone_frequency", rootCmd.PersistentFlags().Lookup("frequency")))
	cobra.CheckErr(viper.BindPFlag("send_speed", rootCmd.PersistentFlags().Lookup("send-speed")))
	cobra.CheckErr(viper.BindPFlag("receive_speed", rootCmd.PersistentFlags().Lookup("receive-speed")))
	cobra.CheckErr(viper.BindPFlag("send_text", rootCmd.PersistentFlags().Lookup("send-text")))
	cobra.CheckErr(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}
