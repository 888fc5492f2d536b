/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Command xmppd starts the server: it loads configuration, wires the
// router and an in-memory credential directory, starts the MUC component
// when config.Modules.Enabled names "muc" (no other module name is
// recognised), and begins accepting connections.
package main

import (
	"flag"

	"github.com/ortuman/xmppd/authdir"
	"github.com/ortuman/xmppd/config"
	"github.com/ortuman/xmppd/log"
	"github.com/ortuman/xmppd/module"
	"github.com/ortuman/xmppd/module/muc"
	"github.com/ortuman/xmppd/router"
	"github.com/ortuman/xmppd/server"
)

func main() {
	cfgPath := flag.String("config", "./xmppd.yml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	tlsCfg, err := server.LoadTLSConfig(&cfg.TLS)
	if err != nil {
		log.Fatalf("%v", err)
	}

	r := router.Initialize(cfg.ServerName)
	dir := authdir.New()

	var components []module.Component
	if _, ok := cfg.Modules.Enabled["muc"]; ok {
		components = append(components, muc.New("conference."+cfg.ServerName))
	}
	for _, c := range components {
		if err := c.Start(r); err != nil {
			log.Fatalf("xmppd: starting %s: %v", c.Name(), err)
		}
	}

	log.Infof("xmppd: starting server for domain %s", cfg.ServerName)
	sv := server.New(cfg, tlsCfg, r, dir)
	if err := sv.Start(); err != nil {
		log.Fatalf("%v", err)
	}
}
