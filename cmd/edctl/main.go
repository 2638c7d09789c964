/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command edctl is a small demonstration CLI wiring the reactor, a TCP
// message server, and a permanent message client together.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nabbar/eventdispatcher/internal/logging"
)

var cfg = viper.New()

func main() {
	root := &cobra.Command{
		Use:   "edctl",
		Short: "drive a reactor-backed message server or client",
	}

	var logLevel string
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	_ = cfg.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	cfg.SetEnvPrefix("EDCTL")
	cfg.AutomaticEnv()

	cobra.OnInitialize(func() {
		lvl, err := logrus.ParseLevel(cfg.GetString("log-level"))
		if err != nil {
			lvl = logrus.InfoLevel
		}
		l := logrus.New()
		l.SetLevel(lvl)
		logging.SetLogger(l)
	})

	root.AddCommand(newServeCommand())
	root.AddCommand(newClientCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
