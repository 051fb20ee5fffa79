// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"facility-search-workers/pkg/registry"
)

func main() {
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	showCmd := flag.NewFlagSet("show", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)

	listPath := listCmd.String("path", "", "Path to catalog file (default: built-in catalog)")
	showPath := showCmd.String("path", "", "Path to catalog file (default: built-in catalog)")
	showID := showCmd.String("id", "", "Activity ID")
	updatePath := updateCmd.String("path", "configs/activities.json", "Path to catalog file")
	idUpdate := updateCmd.String("id", "", "Activity ID to update")
	field := updateCmd.String("field", "", "Field to update (timeout, retries, version, description)")
	value := updateCmd.String("value", "", "New value for the field")
	validatePath := validateCmd.String("path", "", "Path to catalog file (default: built-in catalog)")
	exportPath := exportCmd.String("out", "configs/activities.json", "Where to write the built-in catalog")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		listCmd.Parse(os.Args[2:])
		reg := mustLoad(*listPath)
		for _, a := range reg.Activities {
			fmt.Printf("%-22s %-22s timeout=%-5s retries=%d  %s\n", a.ID, a.TaskType, a.Timeout, a.Retries, a.DisplayName)
		}

	case "show":
		showCmd.Parse(os.Args[2:])
		if *showID == "" {
			fmt.Println("Error: id is required for show.")
			showCmd.Usage()
			os.Exit(1)
		}
		reg := mustLoad(*showPath)
		for _, a := range reg.Activities {
			if a.ID == *showID {
				data, _ := json.MarshalIndent(a, "", "  ")
				fmt.Println(string(data))
				return
			}
		}
		fmt.Printf("Activity %s not found\n", *showID)
		os.Exit(1)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateActivity(*updatePath, *idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated activity %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg := mustLoad(*validatePath)
		if err := reg.Validate(); err != nil {
			fmt.Printf("Catalog validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Catalog validation passed. Found %d activities.\n", len(reg.Activities))

	case "export":
		exportCmd.Parse(os.Args[2:])
		reg := mustLoad("")
		if err := saveRegistry(reg, *exportPath); err != nil {
			fmt.Printf("Error exporting catalog: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote built-in catalog to %s\n", *exportPath)

	case "help":
		fallthrough
	default:
		help()
	}
}

func mustLoad(path string) *registry.ActivityRegistry {
	var (
		reg *registry.ActivityRegistry
		err error
	)
	if path == "" {
		reg, err = registry.Default()
	} else {
		reg, err = registry.LoadRegistry(path)
	}
	if err != nil {
		fmt.Printf("Error loading catalog: %v\n", err)
		os.Exit(1)
	}
	return reg
}

func updateActivity(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	found := false
	for i := range reg.Activities {
		if reg.Activities[i].ID != id {
			continue
		}
		found = true
		switch field {
		case "version":
			reg.Activities[i].Version = value
		case "description":
			reg.Activities[i].Description = value
		case "timeout":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("invalid timeout value: %w", err)
			}
			reg.Activities[i].Timeout = value
		case "retries":
			retries, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid retries value: %w", err)
			}
			reg.Activities[i].Retries = retries
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		break
	}
	if !found {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, path)
}

func saveRegistry(reg *registry.ActivityRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  list      List the job types in the activity catalog
  show      Print one activity, including its input schema
  update    Update an activity's field in a catalog file
  validate  Validate a catalog (required fields, timeouts, error codes, schemas)
  export    Write the built-in catalog to a file for editing
  help      Show this help message

Examples:
  registry-updater list
  registry-updater show -id resolve-query
  registry-updater export -out configs/activities.json
  registry-updater update -path configs/activities.json -id resolve-query -field timeout -value 120s
  registry-updater validate -path configs/activities.json

Point lookup.activities_path at an exported file to override the built-in catalog.
`)
}
