package merge

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Pattern regexes tried in precedence order (spec §4.6 output naming),
// extending original_source bot/modules/merge.py's S01E01/Episode-only
// detection with the Part-NN and trailing-number patterns the spec adds.
var (
	seriesPattern  = regexp.MustCompile(`(?i)(.*?)S(\d+)\s*E(\d+)`)
	episodePattern = regexp.MustCompile(`(?i)(.*?)Episode\s*(\d+)`)
	partPattern    = regexp.MustCompile(`(?i)(.*?)Part\s*0*(\d+)`)
	trailingNumber = regexp.MustCompile(`^(.*?)0*(\d+)$`)
)

// DetectOutputName builds the merged output's base name (without
// extension) from the cleaned basenames of the merge inputs, following
// spec §4.6's precedence: series S01E01, Part NN, trailing-number, else
// fallback to "{first_base}_merged". opts.OutputName, if set, always
// wins outright.
func DetectOutputName(basenames []string, outputName string) string {
	if outputName != "" {
		return outputName
	}
	if len(basenames) == 0 {
		return "merged"
	}

	cleaned := make([]string, len(basenames))
	for i, b := range basenames {
		cleaned[i] = cleanBasename(b)
	}

	if name, ok := detectSeries(cleaned); ok {
		return name
	}
	if name, ok := detectPart(cleaned); ok {
		return name
	}
	if name, ok := detectTrailingNumber(cleaned); ok {
		return name
	}

	first := stripExt(basenames[0])
	return first + "_merged"
}

func cleanBasename(name string) string {
	name = stripExt(name)
	return strings.Join(strings.Fields(strings.ReplaceAll(name, ".", " ")), " ")
}

func stripExt(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext)
}

func detectSeries(cleaned []string) (string, bool) {
	var series, season string
	var numbers []int
	for _, name := range cleaned {
		m := seriesPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if series == "" {
			series = strings.TrimSpace(m[1])
			season = m[2]
		}
		n, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	if series == "" || len(numbers) == 0 {
		return "", false
	}
	sort.Ints(numbers)
	return fmt.Sprintf("%s S%sE%02d-E%02d", series, season, numbers[0], numbers[len(numbers)-1]), true
}

func detectPart(cleaned []string) (string, bool) {
	var prefix string
	var numbers []int
	for _, name := range cleaned {
		m := partPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if prefix == "" {
			prefix = strings.TrimSpace(m[1])
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	if prefix == "" || len(numbers) == 0 {
		return "", false
	}
	sort.Ints(numbers)
	return fmt.Sprintf("%s Part %02d-%02d", prefix, numbers[0], numbers[len(numbers)-1]), true
}

func detectTrailingNumber(cleaned []string) (string, bool) {
	var prefix string
	var numbers []int
	for _, name := range cleaned {
		m := trailingNumber.FindStringSubmatch(name)
		if m == nil {
			return "", false
		}
		p := strings.TrimSpace(m[1])
		if prefix == "" {
			prefix = p
		} else if p != prefix {
			return "", false
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return "", false
		}
		numbers = append(numbers, n)
	}
	if prefix == "" || len(numbers) == 0 {
		return "", false
	}
	sort.Ints(numbers)
	return fmt.Sprintf("%s %d-%d", prefix, numbers[0], numbers[len(numbers)-1]), true
}

// ResolveExtension applies the spec's extension rule: ".mkv" if any input
// carries an ASS/SSA subtitle stream, otherwise ".mp4". If name already
// carries one of those extensions it is left as-is.
func ResolveExtension(name string, hasASS bool) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".mkv") || strings.HasSuffix(lower, ".mp4") {
		if hasASS && strings.HasSuffix(lower, ".mp4") {
			return strings.TrimSuffix(name, name[len(name)-4:]) + ".mkv"
		}
		return name
	}
	if hasASS {
		return name + ".mkv"
	}
	return name + ".mp4"
}
