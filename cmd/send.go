package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/moyoez/localsend-session/notify"
	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/transfer"
	"github.com/moyoez/localsend-session/types"
)

func newSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <ip> [files...]",
		Short: "Send files or a text message to a LocalSend v1 receiver",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), cmd.OutOrStdout(), args[0], args[1:])
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.UseText, "text", "", "send this text as a message")
	f.IntVar(&flags.UseTargetPort, "target-port", tool.DefaultPort, "receiver port")
	f.BoolVar(&flags.UseTargetHttps, "target-https", true, "receiver speaks https")
	f.BoolVar(&flags.UseProbe, "probe", false, "ping the receiver before sending")
	return cmd
}

func runSend(ctx context.Context, out io.Writer, ip string, paths []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid receiver address %q", ip)
	}
	files := make([]types.LocalFile, 0, len(paths)+1)
	for _, p := range paths {
		files = append(files, types.LocalFile{Path: p})
	}
	if flags.UseText != "" {
		files = append(files, types.LocalFile{Text: flags.UseText})
	}
	if len(files) == 0 {
		return errors.New("nothing to send: pass files or --text")
	}
	target := types.Device{IP: ip, Port: flags.UseTargetPort, Https: flags.UseTargetHttps}

	if flags.UseProbe {
		rtt, err := tool.Probe(ctx, ip, 3)
		if err != nil {
			tool.DefaultLogger.Warnf("[Probe] %v", err)
		} else {
			tool.DefaultLogger.Infof("[Probe] %s answered in %v", ip, rtt)
		}
	}

	info, err := transfer.FetchInfo(ctx, target, cfg.Fingerprint)
	if err != nil {
		if errors.Is(err, types.ErrSelfDiscovered) {
			return fmt.Errorf("%s is this device", target.BaseURL())
		}
		return fmt.Errorf("receiver unreachable: %s", transfer.DescribeError(err))
	}
	target.Alias, target.DeviceModel, target.DeviceType = info.Alias, info.DeviceModel, info.DeviceType
	tool.DefaultLogger.Infof("Sending %d item(s) to %s (%s)", len(files), info.Alias, target.BaseURL())

	sender := transfer.NewSender(transfer.SenderOptions{
		Self:     tool.SelfDevice(cfg),
		Observer: notify.NewThrottle(notify.LogObserver{}, 2),
	})

	// Interrupts go through CancelSession so the receiver hears about them.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancelCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = sender.CancelSession(cancelCtx)
		case <-done:
		}
	}()

	snapshot, err := sender.Run(context.WithoutCancel(ctx), target, files)
	switch {
	case errors.Is(err, types.ErrCanceled):
		return errors.New("transfer canceled")
	case errors.Is(err, types.ErrNothingAccepted):
		fmt.Fprintln(out, "The receiver did not select any file.")
		return nil
	case err != nil && snapshot.SessionId == "":
		return err
	}

	fmt.Fprintf(out, "Session %s: %s\n", snapshot.SessionId, snapshot.Status)
	for _, id := range snapshot.Order {
		f := snapshot.Files[id]
		line := fmt.Sprintf("  %-10s %s", f.Status, f.File.FileName)
		if f.ErrorMessage != "" {
			line += ": " + f.ErrorMessage
		}
		fmt.Fprintln(out, line)
	}
	switch snapshot.Status {
	case types.SessionStatusFinished:
		return nil
	case types.SessionStatusDeclined:
		return errors.New("declined by the receiver")
	case types.SessionStatusRecipientBusy:
		return errors.New("the receiver is busy with another transfer")
	default:
		if snapshot.ErrorMessage != "" {
			return errors.New(snapshot.ErrorMessage)
		}
		return errors.New("some files failed")
	}
}
