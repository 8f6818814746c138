package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysync/internal/admintoken"
	"github.com/smallbiznis/paysync/internal/alert"
	"github.com/smallbiznis/paysync/internal/clock"
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/metricsexport"
	"github.com/smallbiznis/paysync/internal/migration"
	"github.com/smallbiznis/paysync/internal/observability"
	"github.com/smallbiznis/paysync/internal/order"
	"github.com/smallbiznis/paysync/internal/outbox"
	"github.com/smallbiznis/paysync/internal/payment"
	"github.com/smallbiznis/paysync/internal/providers/slack"
	"github.com/smallbiznis/paysync/internal/ratelimit"
	"github.com/smallbiznis/paysync/internal/server"
	"github.com/smallbiznis/paysync/pkg/db"
	"go.uber.org/fx"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-admin-token" {
		os.Exit(hashAdminToken())
	}

	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		slack.Module,
		alert.Module,
		outbox.Module,

		// Payment core
		order.Module,
		payment.Module,
		server.Module,
		metricsexport.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

// hashAdminToken reads a token from stdin and prints the value to use for
// ADMIN_API_TOKEN_HASH.
func hashAdminToken() int {
	raw, err := io.ReadAll(io.LimitReader(os.Stdin, 4096))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read token:", err)
		return 1
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		fmt.Fprintln(os.Stderr, "token is empty")
		return 1
	}
	encoded, err := admintoken.Hash(token)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash token:", err)
		return 1
	}
	fmt.Println(encoded)
	return 0
}
