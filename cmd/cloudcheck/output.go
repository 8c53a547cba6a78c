package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	json "github.com/json-iterator/go"

	"github.com/hemantobora/cloudcheck/internal/models"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func writeInstances(w io.Writer, instances []models.ComputeInstance) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"Instance", "Type", "Tier", "Public", "Private", "Zone", "Region", "Root GiB", "Groups", "Inbound", "Outbound"})
	for _, inst := range instances {
		tier := "public"
		if inst.IsPrivate {
			tier = "private"
		}
		t.AppendRow(table.Row{
			inst.InstanceID,
			inst.Type,
			tier,
			inst.PublicAddress,
			inst.PrivateAddress,
			inst.AvailabilityZone,
			inst.Region,
			inst.StorageSize,
			strings.Join(inst.AccessGroupIDs, "\n"),
			formatRules(inst.InboundRules),
			formatRules(inst.OutboundRules),
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d running", len(instances))})
	t.Render()
	return nil
}

// formatRules renders one rule per line as "proto ports source"
func formatRules(rules []models.AccessRule) string {
	lines := make([]string, 0, len(rules))
	for _, r := range rules {
		ports := fmt.Sprintf("%d", r.FromPort)
		if r.FromPort != r.ToPort {
			ports = fmt.Sprintf("%d-%d", r.FromPort, r.ToPort)
		}
		if r.Protocol == "-1" {
			ports = "all"
		}
		peer := r.CIDR
		if r.ReferencedGroupID != "" {
			peer = r.ReferencedGroupID
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", r.Protocol, ports, peer))
	}
	return strings.Join(lines, "\n")
}

func writePolicy(w io.Writer, policy models.IdentityPolicy) error {
	if _, err := fmt.Fprintf(w, "%s (version %s)\n", policy.Name, policy.Document.Version); err != nil {
		return err
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Sid", "Effect", "Action", "Resource"})
	for _, st := range policy.Document.Statement {
		t.AppendRow(table.Row{st.Sid, st.Effect, strings.Join(st.Action.Values(), "\n"), st.Resource})
	}
	t.Render()
	return nil
}
