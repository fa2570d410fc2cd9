package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	api "github.com/storyworks/analyzerd/api/v1"
	"github.com/storyworks/analyzerd/internal/tlsconfig"
)

// TODO: Inject version at build time.
const version = "0.0.1"

type config struct {
	serverHostname string
	serverPort     string
	token          string
	caCertPath     string
	certPath       string
	keyPath        string
}

type cli struct {
	client  *http.Client
	baseURL string
	token   string
}

func newCLI() *cli {
	return &cli{}
}

func (c *cli) rootCmd() *cobra.Command {
	cfg := &config{}

	command := &cobra.Command{
		Use:          "analyzerctl",
		Short:        "CLI for running repository analyses against an analyzerd server",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.connect(cfg)
		},
	}

	command.AddCommand(
		c.runCmd(),
		c.kindsCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	command.PersistentFlags().StringVar(
		&cfg.serverHostname,
		"server-hostname",
		"localhost",
		"Server hostname",
	)

	command.PersistentFlags().StringVar(
		&cfg.serverPort,
		"server-port",
		"8443",
		"Server port",
	)

	command.PersistentFlags().StringVar(
		&cfg.token,
		"token",
		"",
		"Bearer token for authentication",
	)

	command.PersistentFlags().StringVar(
		&cfg.certPath,
		"cert-path",
		"",
		"Path to client TLS certificate",
	)

	command.PersistentFlags().StringVar(
		&cfg.keyPath,
		"key-path",
		"",
		"Path to client TLS private key",
	)

	command.PersistentFlags().StringVar(
		&cfg.caCertPath,
		"ca-cert-path",
		"",
		"Path to CA certificate for mTLS",
	)

	return command
}

// connect prepares the HTTP client. TLS is used when certificate paths are
// provided, matching the server's optional mTLS mode.
func (c *cli) connect(cfg *config) error {
	addr := net.JoinHostPort(cfg.serverHostname, cfg.serverPort)
	c.token = cfg.token

	if cfg.certPath == "" && cfg.keyPath == "" && cfg.caCertPath == "" {
		c.baseURL = "http://" + addr
		c.client = &http.Client{}

		return nil
	}

	tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
		CertPath:   cfg.certPath,
		KeyPath:    cfg.keyPath,
		CACertPath: cfg.caCertPath,
		ServerName: cfg.serverHostname,
	})
	if err != nil {
		return err
	}

	c.baseURL = "https://" + addr
	c.client = &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}

	return nil
}

func (c *cli) runCmd() *cobra.Command {
	var kind, focus string

	command := &cobra.Command{
		Use:     "run [flags] SUBJECT",
		Short:   "Run an analysis and stream its output",
		Example: "  analyzerctl run acme/widgets --kind quick --focus security",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAnalysis(
				cmd.Context(),
				api.AnalysisRequest{
					Subject: args[0],
					Kind:    kind,
					Focus:   focus,
				},
				cmd.OutOrStdout(),
				cmd.ErrOrStderr(),
			)
		},
	}

	command.Flags().StringVar(&kind, "kind", "full", "Analysis kind: quick, full or enhanced")
	command.Flags().StringVar(&focus, "focus", "", "Narrow the analysis to one area")

	return command
}

func (c *cli) runAnalysis(
	ctx context.Context,
	req api.AnalysisRequest,
	stdout, stderr io.Writer,
) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/analyses",
		bytes.NewReader(body),
	)
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.setAuth(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readErrorResponse(resp)
	}

	result, err := printEvents(resp.Body, stdout, stderr)
	if err != nil {
		// A cancelled stream (Ctrl-C) is not an error worth reporting.
		if ctx.Err() != nil {
			return nil
		}

		return err
	}

	if result == nil {
		return errors.New("stream ended without a result")
	}

	if !result.Success {
		return fmt.Errorf("analysis failed: %s", result.Error)
	}

	return nil
}

// printEvents consumes the SSE stream, writing output lines to stdout and
// error lines to stderr as they arrive, and returns the terminal result.
func printEvents(
	body io.Reader,
	stdout, stderr io.Writer,
) (*api.AnalysisResult, error) {
	var result *api.AnalysisResult

	err := decodeStream(body, func(name, data string) error {
		switch name {
		case api.EventOutput:
			var line api.LineEvent
			if err := json.Unmarshal([]byte(data), &line); err != nil {
				return err
			}
			fmt.Fprintln(stdout, line.Line)

		case api.EventError:
			var line api.LineEvent
			if err := json.Unmarshal([]byte(data), &line); err != nil {
				return err
			}
			fmt.Fprintln(stderr, line.Line)

		case api.EventResult:
			result = &api.AnalysisResult{}
			if err := json.Unmarshal([]byte(data), result); err != nil {
				return err
			}

			if len(result.Analysis) > 0 {
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, result.Analysis, "", "  "); err == nil {
					fmt.Fprintln(stdout, pretty.String())
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *cli) kindsCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "kinds",
		Short:   "List supported analysis kinds and their deadlines",
		Example: "  analyzerctl kinds",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			httpReq, err := http.NewRequestWithContext(
				cmd.Context(),
				http.MethodGet,
				c.baseURL+"/v1/analyses/kinds",
				nil,
			)
			if err != nil {
				return err
			}
			c.setAuth(httpReq)

			resp, err := c.client.Do(httpReq)
			if err != nil {
				return mapTransportError(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return readErrorResponse(resp)
			}

			var kinds []api.KindInfo
			if err := json.NewDecoder(resp.Body).Decode(&kinds); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			fmt.Fprintf(w, "KIND\tDEADLINE\t\n")
			for _, info := range kinds {
				fmt.Fprintf(w, "%s\t%s\t\n", info.Kind, info.Deadline)
			}

			return w.Flush()
		},
	}

	return command
}

func (c *cli) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// readErrorResponse translates non-200 replies to human-readable errors.
func readErrorResponse(resp *http.Response) error {
	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil &&
		errResp.Error != "" {
		return errors.New(errResp.Error)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return errors.New("not authenticated")
	case http.StatusForbidden:
		return errors.New("not authorised")
	case http.StatusServiceUnavailable:
		return errors.New("server unavailable")
	default:
		return fmt.Errorf("server returned %s", resp.Status)
	}
}

func mapTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.New("server unavailable")
	}

	return err
}
