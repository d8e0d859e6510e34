package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stitchline/portal-client/internal/config"
	"github.com/stitchline/portal-client/portal"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Error: %s\n", err)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	logger := newLogger(c)
	p, err := portal.New(c, portal.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "bootstrap")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.GetHTTPTimeout())
	defer cancel()

	if len(args) == 0 {
		return errors.New("usage: portal <login|whoami|logout>")
	}

	switch args[0] {
	case "login":
		if len(args) != 3 {
			return errors.New("usage: portal login <username> <password>")
		}
		redirect, err := p.Login(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Logged in. Landing route: %s\n", redirect)
	case "whoami":
		profile, err := p.API.Auth.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s <%s> role=%s\n", profile.FullName(), profile.Email, profile.Role)
	case "logout":
		p.Logout()
		fmt.Println("Logged out.")
	default:
		return errors.Errorf("unknown command %q", args[0])
	}
	return nil
}

func newLogger(c config.Config) zerolog.Logger {
	fileWriter := &lumberjack.Logger{
		Filename:   c.GetLogFile(),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	writer := io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}, fileWriter)
	level := zerolog.InfoLevel
	if c.GetEnv() == "DEV" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
