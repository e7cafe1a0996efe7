package procscan

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// parseProcessCSV parses header-labelled CSV as produced by wmic /format:csv
// or PowerShell ConvertTo-Csv. Column order varies between tools, so the
// header row drives field mapping. Malformed rows are skipped; rows missing
// pid, ppid, or memory are unusable and dropped.
func parseProcessCSV(out, name string) []ProcessRecord {
	var records []ProcessRecord

	for _, block := range strings.Split(out, "\n\n") {
		block = strings.TrimSpace(strings.ReplaceAll(block, "\r", ""))
		if block == "" {
			continue
		}

		r := csv.NewReader(strings.NewReader(block))
		r.FieldsPerRecord = -1
		rows, err := r.ReadAll()
		if err != nil || len(rows) < 2 {
			continue
		}

		pidCol, ppidCol, memCol, nameCol := -1, -1, -1, -1
		for i, h := range rows[0] {
			switch strings.ToLower(strings.TrimSpace(h)) {
			case "processid":
				pidCol = i
			case "parentprocessid":
				ppidCol = i
			case "workingsetsize":
				memCol = i
			case "name":
				nameCol = i
			}
		}
		if pidCol < 0 || ppidCol < 0 || memCol < 0 {
			continue
		}

		for _, row := range rows[1:] {
			rec, ok := csvRow(row, pidCol, ppidCol, memCol, nameCol)
			if !ok {
				continue
			}
			if rec.Name == "" {
				rec.Name = name
			}
			if !MatchName(rec.Name, name) {
				continue
			}
			records = append(records, rec)
		}
	}

	return records
}

func csvRow(row []string, pidCol, ppidCol, memCol, nameCol int) (ProcessRecord, bool) {
	max := pidCol
	for _, c := range []int{ppidCol, memCol, nameCol} {
		if c > max {
			max = c
		}
	}
	if len(row) <= max {
		return ProcessRecord{}, false
	}

	pid, ok1 := coerceUint(row[pidCol])
	ppid, ok2 := coerceUint(row[ppidCol])
	memBytes, ok3 := coerceUint(row[memCol])
	if !ok1 || !ok2 || !ok3 || pid == 0 {
		return ProcessRecord{}, false
	}

	rec := ProcessRecord{
		PID:              int(pid),
		ParentPID:        int(ppid),
		ResidentMemoryKB: memBytes / 1024,
	}
	if nameCol >= 0 {
		rec.Name = strings.TrimSpace(row[nameCol])
	}
	return rec, true
}

// parsePSOutput parses `ps -axo pid=,ppid=,rss=,comm=` rows. RSS is already
// in kilobytes. The command column may contain spaces and is matched by its
// basename.
func parsePSOutput(out, name string) []ProcessRecord {
	var records []ProcessRecord

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		pid, ok1 := coerceUint(fields[0])
		ppid, ok2 := coerceUint(fields[1])
		rssKB, ok3 := coerceUint(fields[2])
		if !ok1 || !ok2 || !ok3 || pid == 0 {
			continue
		}

		comm := strings.Join(fields[3:], " ")
		base := comm
		if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
			base = base[idx+1:]
		}
		if !MatchName(base, name) {
			continue
		}

		records = append(records, ProcessRecord{
			PID:              int(pid),
			ParentPID:        int(ppid),
			ResidentMemoryKB: rssKB,
			Name:             base,
		})
	}

	return records
}

// coerceUint parses a numeric field, tolerating surrounding whitespace,
// quotes, and thousands separators.
func coerceUint(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
