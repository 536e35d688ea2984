package main

import "testing"

func TestParseArgPairs(t *testing.T) {
	args, err := parseArgPairs([]string{"target=/mnt/backups", "level=full", "empty="})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if args["target"] != "/mnt/backups" || args["level"] != "full" {
		t.Fatalf("args = %v", args)
	}
	if v, ok := args["empty"]; !ok || v != "" {
		t.Fatal("empty value should be kept")
	}

	// Values may contain '='; only the first one splits.
	args, err = parseArgPairs([]string{"query=a=b"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if args["query"] != "a=b" {
		t.Fatalf("query = %q", args["query"])
	}

	if _, err := parseArgPairs([]string{"novalue"}); err == nil {
		t.Fatal("pair without '=' accepted")
	}
	if _, err := parseArgPairs([]string{"=value"}); err == nil {
		t.Fatal("pair without a name accepted")
	}
	if args, err := parseArgPairs(nil); err != nil || args != nil {
		t.Fatal("empty input should yield nil, nil")
	}
}
