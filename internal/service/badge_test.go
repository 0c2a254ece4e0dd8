package service

import (
	"testing"
	"time"

	"github.com/sakif/contribtrack/internal/model"
)

func mergedEntries(repoURL string, n int) []model.MergedEntry {
	out := make([]model.MergedEntry, n)
	for i := range out {
		out[i] = model.MergedEntry{
			RepoURL:  repoURL,
			PRNumber: i + 1,
			MergedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func TestCalculateBadges(t *testing.T) {
	registered := map[string]bool{
		"https://github.com/org/repo": true,
	}

	cases := []struct {
		name   string
		merged []model.MergedEntry
		points int
		want   []string
	}{
		{
			name:   "empty ledger gets newcomer and explorer",
			merged: nil,
			points: 0,
			want:   []string{"Newcomer", "Explorer"},
		},
		{
			name:   "first merge",
			merged: mergedEntries("https://github.com/org/repo", 1),
			points: 50,
			want:   []string{"Newcomer", "First Merge", "Explorer"},
		},
		{
			name:   "five merges crosses regular",
			merged: mergedEntries("https://github.com/org/repo", 5),
			points: 250,
			want:   []string{"Newcomer", "First Merge", "Regular Contributor", "Explorer", "Bronze", "Silver"},
		},
		{
			name:   "ten merges crosses core",
			merged: mergedEntries("https://github.com/org/repo", 10),
			points: 500,
			want: []string{"Newcomer", "First Merge", "Regular Contributor", "Core Contributor",
				"Explorer", "Bronze", "Silver", "Gold"},
		},
		{
			// The point ladder is cumulative: every tier at or below the
			// total is present, none above it.
			name:   "1200 points carries all tiers through platinum",
			merged: mergedEntries("https://github.com/org/repo", 1),
			points: 1200,
			want: []string{"Newcomer", "First Merge",
				"Explorer", "Bronze", "Silver", "Gold", "Platinum"},
		},
		{
			// Merges to unregistered repositories stay on the ledger but do
			// not count toward the contribution tiers.
			name:   "unregistered repo merges excluded from count tiers",
			merged: mergedEntries("https://github.com/other/abandoned", 7),
			points: 0,
			want:   []string{"Newcomer", "Explorer"},
		},
		{
			name:   "exact threshold is inclusive",
			merged: nil,
			points: 100,
			want:   []string{"Newcomer", "Explorer", "Bronze"},
		},
		{
			name:   "top of the ladder",
			merged: mergedEntries("https://github.com/org/repo", 12),
			points: 10000,
			want: []string{"Newcomer", "First Merge", "Regular Contributor", "Core Contributor",
				"Explorer", "Bronze", "Silver", "Gold", "Platinum", "Diamond",
				"Master", "Grandmaster", "Legend", "Mythic"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateBadges(tc.merged, tc.points, registered)
			if len(got) != len(tc.want) {
				t.Fatalf("CalculateBadges() = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("CalculateBadges() = %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestCalculateBadges_Deterministic(t *testing.T) {
	merged := mergedEntries("https://github.com/org/repo", 5)
	registered := map[string]bool{"https://github.com/org/repo": true}

	first := CalculateBadges(merged, 300, registered)
	second := CalculateBadges(merged, 300, registered)

	if len(first) != len(second) {
		t.Fatalf("repeat call differed: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("repeat call differed: %v vs %v", first, second)
		}
	}
}
