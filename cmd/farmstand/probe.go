package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/tokenstore"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the marketplace API answers",
	Long: `Calls the marketplace once and reports whether it is reachable. With
--browser the bearer token mirrored for that browser is used and the session
behind it is reported as well.`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().String("browser", "", "browser id whose mirrored token to use")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := marketapi.Options{
		BaseURL:    rt.cfg.API.BaseURL,
		HTTPClient: &http.Client{Timeout: rt.cfg.API.Timeout},
		Logger:     rt.logger,
	}
	if browser, _ := cmd.Flags().GetString("browser"); browser != "" {
		opts.Tokens = tokenstore.NewStore(rt.db).Mirror(browser)
	}
	api := marketapi.New(opts)

	out := cmd.OutOrStdout()
	categories, err := api.Categories(ctx)
	if errors.Is(err, marketapi.ErrUnreachable) {
		fmt.Fprintf(out, "api %s: unreachable\n", rt.cfg.API.BaseURL)
		return err
	}
	if err != nil {
		fmt.Fprintf(out, "api %s: error: %s\n", rt.cfg.API.BaseURL, marketapi.Message(err))
		return err
	}
	fmt.Fprintf(out, "api %s: ok (%d categories)\n", rt.cfg.API.BaseURL, len(categories))

	user, err := api.Probe(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(out, "session: error: %s\n", marketapi.Message(err))
	case user == nil:
		fmt.Fprintln(out, "session: anonymous")
	default:
		fmt.Fprintf(out, "session: %s <%s> role=%s\n", user.Name, user.Email, user.Role)
	}
	return nil
}
