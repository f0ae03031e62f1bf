/*
Copyright © 2021 the OceanVal authors.
This file is part of OceanVal.

OceanVal is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanVal is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanVal.  If not, see <http://www.gnu.org/licenses/>.
*/

// command oceanvalweb is a web interface for OceanVal validation results.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/oceanmodel/oceanval/oceanvalutil"
)

const defaultAddress = "localhost:10000"

var logger *logrus.Logger

func init() {
	logger = logrus.StandardLogger()
	logrus.SetLevel(logrus.DebugLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
}

var config = flag.String("config", "oceanvalweb.toml", "Path to the configuration file")

func main() {
	flag.Parse()

	f, err := os.Open(os.ExpandEnv(*config))
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	var c oceanvalutil.ServerConfig
	_, err = toml.DecodeReader(f, &c)
	if err != nil {
		log.Fatal(err)
	}

	logger.Info("validating...")
	h, err := oceanvalutil.NewResultsHandler(&c)
	if err != nil {
		logger.WithError(err).Fatal("failed to create server")
	}

	addr := c.Address
	if addr == "" {
		addr = defaultAddress
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	logger.Infof("listening on http://%s\n", addr)
	logger.Fatal(srv.ListenAndServe())
}
