package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/photosync/journal/internal/app"
	"github.com/photosync/journal/internal/capture"
	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/session"
)

func statusCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether you are browsing as a guest or signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				identity, ok := a.Session.Identity()
				if !ok {
					fmt.Fprintln(out, "Browsing as a guest; photos stay on this device.")
					return nil
				}
				if identity.User != nil {
					fmt.Fprintf(out, "Signed in as %s <%s>\n", identity.User.FullName, identity.User.Email)
				} else {
					fmt.Fprintln(out, "Signed in")
				}
				fmt.Fprintf(out, "Photo service: %s\n", a.Client.BaseURL())
				return nil
			})
		},
	}
}

func loginCommand(s *settings) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the photo service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptPassword(cmd, &password); err != nil {
				return err
			}
			return withApp(cmd, s, func(ctx context.Context, a *app.App) error {
				if err := a.Login(ctx, email, password); err != nil {
					return err
				}
				return printSummary(cmd.OutOrStdout(), a)
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (read from stdin when omitted)")
	cobra.CheckErr(cmd.MarkFlagRequired("email"))
	return cmd
}

func registerCommand(s *settings) *cobra.Command {
	var fullName, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the photo service and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptPassword(cmd, &password); err != nil {
				return err
			}
			if len(password) < models.MinPasswordLength {
				return models.ErrPasswordTooShort
			}
			return withApp(cmd, s, func(ctx context.Context, a *app.App) error {
				if err := a.Register(ctx, fullName, email, password); err != nil {
					return err
				}
				return printSummary(cmd.OutOrStdout(), a)
			})
		},
	}

	cmd.Flags().StringVarP(&fullName, "name", "n", "", "Full name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (read from stdin when omitted)")
	cobra.CheckErr(cmd.MarkFlagRequired("name"))
	cobra.CheckErr(cmd.MarkFlagRequired("email"))
	return cmd
}

func logoutCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and return to guest mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app.App) error {
				if err := a.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out; browsing as a guest.")
				return nil
			})
		},
	}
}

func listCommand(s *settings) *cobra.Command {
	var (
		date  string
		pages int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List photos grouped by day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app.App) error {
				if err := loadOrReport(cmd, a, date, pages); err != nil {
					return err
				}
				printGroups(cmd.OutOrStdout(), a)
				return printSummary(cmd.OutOrStdout(), a)
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Only show photos captured on this day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to fetch when signed in")
	return cmd
}

func captureCommand(s *settings) *cobra.Command {
	var (
		notes, address string
		lat, lng       float64
	)

	cmd := &cobra.Command{
		Use:   "capture <image>",
		Short: "Add a photo from an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			req := capture.Request{
				Image:    f,
				Filename: args[0],
				Notes:    notes,
				Address:  address,
			}
			if cmd.Flags().Changed("lat") != cmd.Flags().Changed("lng") {
				return errors.New("--lat and --lng must be given together")
			}
			if cmd.Flags().Changed("lat") {
				req.Coordinates = &models.Coordinates{Latitude: lat, Longitude: lng}
			}

			return withApp(cmd, s, func(ctx context.Context, a *app.App) error {
				if err := loadOrReport(cmd, a, "", 1); err != nil {
					return err
				}
				photo, err := a.CapturePhoto(ctx, req)
				if photo == nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Saved photo %s captured %s\n", photo.ID, photo.CapturedAt.In(a.Location).Format("2006-01-02 15:04"))
				if c, ok := photo.Coordinates(); ok {
					fmt.Fprintf(out, "Location: %s\n", capture.FormatCoordinates(c))
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", app.Describe(err))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "Notes about the photo")
	cmd.Flags().StringVar(&address, "address", "", "Where the photo was taken")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude (defaults to the EXIF position)")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude (defaults to the EXIF position)")
	return cmd
}

func deleteCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app.App) error {
				if a.Session.Status() == session.StatusGuest {
					if err := loadOrReport(cmd, a, "", 1); err != nil {
						return err
					}
				}
				if err := a.DeletePhoto(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func showCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the details of one photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app.App) error {
				photo, err := a.Photo(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:       %s\n", photo.ID)
				fmt.Fprintf(out, "Captured: %s\n", photo.CapturedAt.In(a.Location).Format("2006-01-02 15:04"))
				if c, ok := photo.Coordinates(); ok {
					fmt.Fprintf(out, "Location: %s\n", capture.FormatCoordinates(c))
				}
				if photo.Address != "" {
					fmt.Fprintf(out, "Address:  %s\n", photo.Address)
				}
				if photo.Notes != "" {
					fmt.Fprintf(out, "Notes:    %s\n", photo.Notes)
				}
				fmt.Fprintf(out, "Image:    %s\n", photo.Locator(a.Client.BaseURL()).Value)
				return nil
			})
		},
	}
}

func mapCommand(s *settings) *cobra.Command {
	var (
		pages int
		zoom  float64
	)

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Show where the loaded photos were taken",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app.App) error {
				if err := loadOrReport(cmd, a, "", pages); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				points, region := a.MapView(zoom)
				fmt.Fprintf(out, "Map centre %s (span %.3f x %.3f)\n",
					capture.FormatCoordinates(models.Coordinates{Latitude: region.Latitude, Longitude: region.Longitude}),
					region.LatitudeDelta, region.LongitudeDelta)

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, p := range points {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.PhotoID,
						p.CapturedAt.In(a.Location).Format("2006-01-02 15:04"),
						capture.FormatCoordinates(p.Coordinates),
						capture.MapsURL(p.Coordinates))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to fetch when signed in")
	cmd.Flags().Float64Var(&zoom, "zoom", 1, "Scale the map span; below 1 zooms in")
	return cmd
}

func calendarCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar",
		Short: "Show the days that have photos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app.App) error {
				days, err := a.Manager.DaysWithPhotos(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(days) == 0 {
					fmt.Fprintln(out, "No photos yet.")
					return nil
				}
				for _, d := range days {
					fmt.Fprintf(out, "%s  %d\n", d.Date, d.Count)
				}
				return nil
			})
		},
	}
}

// loadOrReport loads the collection. A rejected session is reported and the
// guest collection that replaced it is used instead.
func loadOrReport(cmd *cobra.Command, a *app.App, date string, pages int) error {
	err := a.LoadPages(cmd.Context(), date, pages)
	if errors.Is(err, models.ErrUnauthorized) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", app.Describe(err))
		return nil
	}
	return err
}

func printGroups(out io.Writer, a *app.App) {
	groups := a.Groups()
	if len(groups) == 0 {
		fmt.Fprintln(out, "No photos.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range groups {
		fmt.Fprintf(w, "%s (%d)\n", g.Label, len(g.Photos))
		for _, p := range g.Photos {
			loc := p.Locator(a.Client.BaseURL())
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", p.CapturedAt.In(a.Location).Format("15:04"), p.ID, p.Notes, loc.Value)
		}
	}
	w.Flush()
}

func printSummary(out io.Writer, a *app.App) error {
	snap := a.Manager.Snapshot()
	mode := "guest"
	if snap.Status == session.StatusAuthenticated {
		mode = "signed in"
	}
	fmt.Fprintf(out, "%d of %d photos (%s", len(snap.Photos), snap.Page.TotalCount, mode)
	if snap.Page.HasMore {
		fmt.Fprintf(out, ", page %d of %d, more with --pages", snap.Page.CurrentPage, snap.Page.TotalPages)
	}
	fmt.Fprintln(out, ")")
	return nil
}

// promptPassword reads the password from stdin when no flag was given
func promptPassword(cmd *cobra.Command, password *string) error {
	if *password != "" {
		return nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	*password = strings.TrimRight(line, "\r\n")
	if *password == "" {
		return errors.New("password is required")
	}
	return nil
}
