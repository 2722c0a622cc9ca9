package main

import (
	"fmt"

	"github.com/manifoldco/promptui"

	"chainwatch/internal/risk"
)

// pickRegion shows an arrow-key picker starting at current.
func pickRegion(regions []risk.Region, current risk.Region) (risk.Region, error) {
	if len(regions) == 0 {
		return current, nil
	}
	items := make([]string, len(regions))
	cursor := 0
	for i, region := range regions {
		items[i] = string(region)
		if region == current {
			cursor = i
		}
	}

	prompt := promptui.Select{
		Label:     "Region",
		Items:     items,
		CursorPos: cursor,
		Size:      len(items),
	}
	_, picked, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("region selection cancelled: %w", err)
	}
	return risk.Region(picked), nil
}
