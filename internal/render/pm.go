// Package render turns resolved recipes into build inputs: Dockerfiles,
// provisioning scripts, and verification scripts. Everything here is pure
// string assembly with no Docker or network dependencies.
package render

import (
	"fmt"
	"strings"

	"github.com/mossrock-dev/kiln/internal/recipe"
)

// PackageManager describes how one package-manager family refreshes its
// index, installs packages, cleans its cache, and queries installed state.
// The command strings are fixed per family; only the package list varies.
type PackageManager struct {
	// Name identifies the family: "apt", "apk", or "dnf".
	Name string

	updateCmd     string
	installPrefix string
	cleanCmd      string
	queryFormat   string
}

// The supported package-manager families.
//
// The apt install prefix pins two behaviors needed for unattended builds:
// DEBIAN_FRONTEND=noninteractive suppresses debconf prompts, and
// --force-confold keeps existing config files instead of prompting.
var (
	Apt = PackageManager{
		Name:          "apt",
		updateCmd:     "apt-get update",
		installPrefix: "DEBIAN_FRONTEND=noninteractive apt-get --option Dpkg::Options::=--force-confold --assume-yes install",
		cleanCmd:      "rm -rf /var/lib/apt/lists/*",
		queryFormat:   "dpkg -s %s",
	}

	Apk = PackageManager{
		Name:          "apk",
		updateCmd:     "apk update",
		installPrefix: "apk add",
		cleanCmd:      "rm -rf /var/cache/apk/*",
		queryFormat:   "apk info -e %s",
	}

	Dnf = PackageManager{
		Name:          "dnf",
		updateCmd:     "dnf makecache",
		installPrefix: "dnf --assumeyes install",
		cleanCmd:      "dnf clean all",
		queryFormat:   "rpm -q %s",
	}
)

// UpdateCommand returns the package-index refresh command. This always
// runs before installation.
func (pm PackageManager) UpdateCommand() string {
	return pm.updateCmd
}

// InstallCommand returns the command installing the given packages in
// list order.
func (pm PackageManager) InstallCommand(packages []string) string {
	return pm.installPrefix + " " + strings.Join(packages, " ")
}

// CleanCommand returns the command that removes the package index cache.
func (pm PackageManager) CleanCommand() string {
	return pm.cleanCmd
}

// QueryCommand returns a command that exits zero when the named package
// is installed.
func (pm PackageManager) QueryCommand(pkg string) string {
	return fmt.Sprintf(pm.queryFormat, quoteArg(pkg))
}

// ByName resolves a package-manager family by its recipe override value.
func ByName(name string) (PackageManager, error) {
	switch name {
	case "apt":
		return Apt, nil
	case "apk":
		return Apk, nil
	case "dnf":
		return Dnf, nil
	default:
		return PackageManager{}, fmt.Errorf("unsupported package manager %q (valid: apt, apk, dnf)", name)
	}
}

// dnfBases lists base-image name fragments that indicate an rpm/dnf
// distribution.
var dnfBases = []string{"fedora", "centos", "rocky", "alma", "rhel", "amazonlinux"}

// Detect guesses the package-manager family from the base image name.
// Alpine images use apk, the rpm family uses dnf, and everything else is
// assumed to be Debian-derived (apt). A recipe's package_manager field
// overrides detection.
func Detect(base string) PackageManager {
	lower := strings.ToLower(base)
	if strings.Contains(lower, "alpine") {
		return Apk
	}
	for _, fragment := range dnfBases {
		if strings.Contains(lower, fragment) {
			return Dnf
		}
	}
	return Apt
}

// ManagerFor returns the package manager a recipe uses: the explicit
// override when set, otherwise detection from the base image name.
func ManagerFor(r *recipe.Recipe) (PackageManager, error) {
	if r.PackageManager != "" {
		return ByName(r.PackageManager)
	}
	return Detect(r.Base), nil
}
