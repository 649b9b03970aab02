package pages

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/router"
	"example.com/farmstand/internal/session"
)

const unreachableMessage = "Cannot reach the server. Check that it is running."

// OpenAuth shows the auth dialog on the given tab.
func (s *Site) OpenAuth(ctx context.Context, st *app.State, mode string) router.View {
	st.SwitchAuthMode(mode)
	return s.Refresh(ctx, st)
}

func (s *Site) CloseAuth(ctx context.Context, st *app.State) router.View {
	st.CloseAuthModal()
	return s.Refresh(ctx, st)
}

// Login signs in and lands on the home page.
func (s *Site) Login(ctx context.Context, st *app.State, email, password string) router.View {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return s.authError(ctx, st, app.AuthModeLogin, "Please enter your email and password")
	}
	return s.signIn(ctx, st, app.AuthModeLogin, email, password)
}

// RegisterForm is the sign-up dialog.
type RegisterForm struct {
	Email    string
	Password string
	Name     string
	Address  string
}

// Register creates an account and signs straight in.
func (s *Site) Register(ctx context.Context, st *app.State, form RegisterForm) router.View {
	form.Email = strings.TrimSpace(form.Email)
	form.Name = strings.TrimSpace(form.Name)
	form.Address = strings.TrimSpace(form.Address)
	if form.Email == "" || form.Password == "" || form.Name == "" || form.Address == "" {
		return s.authError(ctx, st, app.AuthModeRegister, "Please fill in all fields")
	}
	err := st.API.Register(ctx, marketapi.RegisterInput{
		Email:    form.Email,
		Username: form.Name,
		Password: form.Password,
		Address:  form.Address,
	})
	if err != nil {
		return s.authError(ctx, st, app.AuthModeRegister, authMessage(err))
	}
	return s.signIn(ctx, st, app.AuthModeRegister, form.Email, form.Password)
}

func (s *Site) signIn(ctx context.Context, st *app.State, mode, email, password string) router.View {
	if _, err := st.API.Login(ctx, email, password); err != nil {
		return s.authError(ctx, st, mode, authMessage(err))
	}
	user, err := st.API.Me(ctx)
	if err != nil || user == nil {
		msg := "Signed in, but the profile could not be loaded"
		if err != nil {
			msg = authMessage(err)
		}
		return s.authError(ctx, st, mode, msg)
	}
	st.SignIn(*user)
	st.RefreshCart(ctx)
	st.CloseAuthModal()
	s.logger.Info("signed in", "browser_id", st.ID, "user_id", user.ID, "role", user.Role)
	st.Toasts.Success("Welcome!", "")
	return s.Navigate(ctx, st, string(router.Home), 0)
}

func (s *Site) authError(ctx context.Context, st *app.State, mode, msg string) router.View {
	st.AuthModal = app.AuthModalState{Open: true, Mode: mode, Error: msg}
	return s.Refresh(ctx, st)
}

func authMessage(err error) string {
	if errors.Is(err, marketapi.ErrUnreachable) {
		return unreachableMessage
	}
	return marketapi.Message(err)
}

// Logout always ends the local session, even when the server call fails.
func (s *Site) Logout(ctx context.Context, st *app.State) router.View {
	if err := st.API.Logout(ctx); err != nil {
		s.fail(st, "Sign-out failed", err)
	}
	st.SignOut()
	st.Toasts.Success("Signed out", "")
	return s.Navigate(ctx, st, string(router.Home), 0)
}

// ProfileProps feeds the profile page.
type ProfileProps struct {
	LoggedIn      bool
	Identity      session.Identity
	Orders        []marketapi.Order
	Subscriptions []marketapi.UserSubscription
}

func (s *Site) renderProfile(ctx context.Context, st *app.State) (any, error) {
	if !st.Session.LoggedIn() {
		return ProfileProps{}, nil
	}
	props := ProfileProps{LoggedIn: true}
	var me *marketapi.User

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		me, err = st.API.Me(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		props.Orders, err = st.API.Orders(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		props.Subscriptions, err = st.API.UserSubscriptions(gctx)
		return err
	})
	err := g.Wait()
	if me != nil {
		st.SignIn(*me)
	}
	id, ok := st.Session.Current()
	if !ok {
		return ProfileProps{}, err
	}
	props.Identity = id
	return props, err
}

// SaveProfile updates the editable profile fields.
func (s *Site) SaveProfile(ctx context.Context, st *app.State, name, address string) router.View {
	if !st.Session.LoggedIn() {
		st.OpenAuthModal()
		return s.Refresh(ctx, st)
	}
	name, address = strings.TrimSpace(name), strings.TrimSpace(address)
	if name == "" {
		st.Toasts.Error("Profile not updated", "Name must not be empty")
		return s.Refresh(ctx, st)
	}
	if err := st.API.UpdateMe(ctx, marketapi.ProfileUpdate{Username: name, Address: address}); err != nil {
		s.fail(st, "Profile not updated", err)
		return s.Refresh(ctx, st)
	}
	st.Session.UpdateProfile(name, address)
	st.Toasts.Success("Profile updated", "")
	return s.Refresh(ctx, st)
}
