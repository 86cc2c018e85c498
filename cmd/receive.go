package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/moyoez/localsend-session/api"
	"github.com/moyoez/localsend-session/api/models"
	"github.com/moyoez/localsend-session/api/notifyhub"
	"github.com/moyoez/localsend-session/notify"
	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/transfer"
	"github.com/moyoez/localsend-session/types"
)

func newReceiveCommand() *cobra.Command {
	var prompt bool
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Serve the LocalSend v1 API and receive files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReceive(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.UseDownloadDir, "dir", "", "directory received files are written to")
	f.BoolVar(&flags.UseAutoAccept, "auto-accept", false, "accept every incoming batch without asking")
	f.StringVar(&flags.UseShowToken, "show-token", "", "token required by POST /show")
	f.StringVar(&flags.UseNotifySocket, "notify-socket", "", "unix socket to forward events to")
	f.BoolVar(&flags.UseQRCode, "qr", false, "print a QR code of this device's URL")
	f.BoolVar(&prompt, "prompt", true, "ask on the terminal whether to accept incoming batches")
	return cmd
}

func runReceive(ctx context.Context, in io.Reader, out io.Writer, prompt bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hub := notifyhub.New()
	dispatcher := notify.NewDispatcher(notify.LogObserver{}, hub)
	if cfg.NotifySocketPath != "" {
		dispatcher.Add(notify.NewSocketNotifier(cfg.NotifySocketPath))
	}
	observer := notify.NewThrottle(dispatcher, 4)

	registry := models.NewRegistry(models.RegistryOptions{
		DestDir:         cfg.DownloadFolder,
		AutoAccept:      cfg.AutoAccept,
		DecisionTimeout: time.Duration(cfg.DecisionTimeoutSeconds) * time.Second,
		Observer:        observer,
	})
	if prompt && !cfg.AutoAccept {
		approver := &consoleApprover{registry: registry, out: out}
		dispatcher.Add(approver)
		go approver.run(in)
	}

	sender := transfer.NewSender(transfer.SenderOptions{Self: tool.SelfDevice(cfg), Observer: observer})
	server := api.NewServer(api.ServerOptions{
		Config:      cfg,
		Registry:    registry,
		Sender:      sender,
		Hub:         hub,
		Observer:    observer,
		BaseContext: ctx,
	})

	self := models.GetSelfDevice()
	tool.DefaultLogger.Infof("Receiving as %q into %s", self.Alias, cfg.DownloadFolder)
	if cfg.ShowToken != "" {
		tool.DefaultLogger.Debugf("Show token: %s", cfg.ShowToken)
	}
	if flags.UseQRCode {
		qr, err := tool.TerminalQRCode(tool.SelfURL(self))
		if err != nil {
			tool.DefaultLogger.Warnf("Failed to render QR code: %v", err)
		} else {
			fmt.Fprintln(out, qr)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	tool.DefaultLogger.Info("Shutting down")
	registry.Close()
	if _, ok := sender.Current(); ok {
		_ = sender.CancelSession(context.Background())
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// consoleApprover asks on the terminal and decides for whichever session is waiting.
type consoleApprover struct {
	registry *models.Registry
	out      io.Writer
}

func (a *consoleApprover) Notify(n *types.Notification) {
	if n.Type != types.NotifyTypeSessionNegotiated {
		return
	}
	files, _ := n.Data["files"].([]types.FileMetadata)
	fmt.Fprintf(a.out, "\n%s (%v) wants to send %d file(s):\n", n.Data["from"], n.Data["ip"], len(files))
	for _, f := range files {
		if f.Preview != "" {
			fmt.Fprintf(a.out, "  %s: %q\n", f.FileName, f.Preview)
			continue
		}
		fmt.Fprintf(a.out, "  %s (%s, %d bytes)\n", f.FileName, f.FileType, f.Size)
	}
	fmt.Fprint(a.out, "Accept? [y/N] ")
}

func (a *consoleApprover) run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		snapshot, ok := a.registry.Current()
		if !ok || snapshot.Status != types.SessionStatusWaiting {
			continue
		}
		var selection map[string]string
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			selection = make(map[string]string, len(snapshot.Files))
			for id, f := range snapshot.Files {
				selection[id] = f.File.FileName
			}
		}
		if err := a.registry.Decide(selection); err != nil {
			tool.DefaultLogger.Debugf("[Decide] %v", err)
		}
	}
}
