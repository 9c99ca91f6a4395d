// Command client is a thin CLI over the AIVERSE HTTP API: each
// subcommand maps 1:1 onto one HTTP route.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	base := flag.NewFlagSet("aiverse", flag.ExitOnError)
	server := base.String("server", "http://localhost:8080", "AIVERSE server address")
	base.Parse(os.Args[1:])

	rest := base.Args()
	if len(rest) < 1 {
		usage()
		os.Exit(1)
	}
	cmd := rest[0]
	args := rest[1:]

	var err error
	switch cmd {
	case "join":
		err = cmdJoin(*server, args)
	case "status":
		err = cmdStatus(*server, args)
	case "buy":
		err = cmdTrade(*server, args, "BUY")
	case "sell":
		err = cmdTrade(*server, args, "SELL")
	case "market":
		err = cmdMarket(*server, args)
	case "companies":
		err = cmdCompanies(*server, args)
	case "leaderboard":
		err = cmdLeaderboard(*server, args)
	case "news":
		err = cmdNews(*server, args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: client [-server addr] <join|status|buy|sell|market|companies|leaderboard|news> [flags]")
}

func cmdJoin(server string, args []string) error {
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	id := fs.String("id", "", "agent id")
	name := fs.String("name", "", "agent name")
	fs.Parse(args)

	return postJSON(server+"/agents/join", map[string]string{"agent_id": *id, "name": *name})
}

func cmdStatus(server string, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	id := fs.String("id", "", "agent id")
	fs.Parse(args)

	return getJSON(server + "/agents/" + *id)
}

func cmdTrade(server string, args []string, side string) error {
	fs := flag.NewFlagSet(side, flag.ExitOnError)
	agent := fs.String("agent", "", "agent id")
	ticker := fs.String("ticker", "", "ticker")
	otype := fs.String("type", "LIMIT", "LIMIT or MARKET")
	price := fs.Float64("price", 0, "limit price")
	qty := fs.Float64("qty", 0, "quantity")
	fs.Parse(args)

	return postJSON(server+"/orders", map[string]any{
		"agent_id": *agent,
		"ticker":   *ticker,
		"side":     side,
		"type":     *otype,
		"price":    *price,
		"quantity": *qty,
	})
}

func cmdMarket(server string, args []string) error {
	fs := flag.NewFlagSet("market", flag.ExitOnError)
	ticker := fs.String("ticker", "", "ticker")
	fs.Parse(args)

	return getJSON(server + "/market/" + *ticker)
}

func cmdCompanies(server string, args []string) error {
	fs := flag.NewFlagSet("companies", flag.ExitOnError)
	fs.Parse(args)
	return getJSON(server + "/companies")
}

func cmdLeaderboard(server string, args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	limit := fs.Int("limit", 20, "max entries")
	fs.Parse(args)
	return getJSON(fmt.Sprintf("%s/leaderboard?limit=%d", server, *limit))
}

func cmdNews(server string, args []string) error {
	fs := flag.NewFlagSet("news", flag.ExitOnError)
	limit := fs.Int("limit", 20, "max entries")
	fs.Parse(args)
	return getJSON(fmt.Sprintf("%s/news?limit=%d", server, *limit))
}

func getJSON(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printPretty(resp.Body)
}

func postJSON(url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printPretty(resp.Body)
}

func printPretty(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
