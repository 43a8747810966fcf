// encode.go serializes resolved recipes back to YAML. `kiln render
// --format recipe` uses this to show the exact recipe a bake would use,
// with every default filled in.
package recipe

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Encode serializes a recipe to YAML with a header comment identifying it
// as generated output.
//
// The encoded form is the resolved recipe: run ApplyDefaults first if the
// output should show derived values (tag, workdir, interpreter, clean).
func Encode(r *Recipe) ([]byte, error) {
	yamlBytes, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize recipe YAML: %w", err)
	}

	// Prepend a header comment so readers can tell resolved output apart
	// from a hand-written recipe file.
	header := fmt.Sprintf(
		"# Resolved kiln recipe %q\n# Generated output - regenerate with 'kiln render --format recipe'\n",
		r.Name,
	)

	return []byte(header + string(yamlBytes)), nil
}
