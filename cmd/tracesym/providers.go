package main

import (
	"context"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/grafana/tracesym/pkg/symbols/registry"
)

func listProviders(ctx context.Context, r *registry.Registry) error {
	table := tablewriter.NewWriter(output(ctx))
	table.SetHeader([]string{"#", "Factory", "Priority", "Origin"})
	table.AppendBulk(lo.Map(r.Registrations(), func(reg registry.Registration, i int) []string {
		return []string{strconv.Itoa(i + 1), reg.Name, strconv.Itoa(reg.Priority), reg.Origin}
	}))
	table.Render()
	return nil
}
