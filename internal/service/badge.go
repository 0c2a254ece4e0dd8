package service

import "github.com/sakif/contribtrack/internal/model"

// Badge tier names.
//
// Two independent ladders feed the badge set:
//   - contribution COUNT tiers, unlocked by merged PRs to currently-registered
//     repositories (1, 5, 10)
//   - POINT tiers, a fixed ascending ladder where every tier at or below the
//     user's total is included
//
// Everyone carries the Newcomer baseline. The list is CUMULATIVE by design:
// a user never loses a badge page by earning the next one.
const (
	BadgeNewcomer = "Newcomer"

	BadgeFirstMerge = "First Merge"         // 1 valid contribution
	BadgeRegular    = "Regular Contributor" // 5
	BadgeCore       = "Core Contributor"    // 10
)

// pointTiers is the ascending point ladder. Order matters: the calculator
// walks it front to back and stops at the first threshold above the total.
var pointTiers = []struct {
	Threshold int
	Name      string
}{
	{0, "Explorer"},
	{100, "Bronze"},
	{250, "Silver"},
	{500, "Gold"},
	{1000, "Platinum"},
	{2000, "Diamond"},
	{3500, "Master"},
	{5000, "Grandmaster"},
	{7500, "Legend"},
	{10000, "Mythic"},
}

// countTiers maps valid-contribution thresholds to count badges, ascending.
var countTiers = []struct {
	Threshold int
	Name      string
}{
	{1, BadgeFirstMerge},
	{5, BadgeRegular},
	{10, BadgeCore},
}

// CalculateBadges maps a ledger's merged entries and point total to the full
// badge set.
//
// PURE FUNCTION — deliberately. It is called from two places (the live
// user-update path and the reconciliation engine) and those call sites must
// agree exactly, so it takes plain values, touches no storage, and is fully
// deterministic. registeredURLs is the set of currently-registered repository
// URLs: merged entries outside it still sit on the ledger but do not count
// toward the contribution tiers, so deregistering a repository retires its
// badges on the next recompute.
func CalculateBadges(merged []model.MergedEntry, points int, registeredURLs map[string]bool) []string {
	badges := []string{BadgeNewcomer}

	valid := 0
	for _, e := range merged {
		if registeredURLs[e.RepoURL] {
			valid++
		}
	}

	for _, tier := range countTiers {
		if valid >= tier.Threshold {
			badges = append(badges, tier.Name)
		}
	}

	// Cumulative point ladder: every tier up to and including the current one.
	for _, tier := range pointTiers {
		if points >= tier.Threshold {
			badges = append(badges, tier.Name)
		} else {
			break
		}
	}

	return badges
}
