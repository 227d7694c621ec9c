// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package sysmon

import (
	"encoding/json"
	"html/template"
	"net/http"
	"os"
	"runtime"

	"chamber/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type Service struct {
	diskPath string
	dbSize   func() (int64, error)
	log      *logger.Logger
}

type Stats struct {
	GoVersion string      `json:"go_version"`
	CPU       CPUStats    `json:"cpu"`
	Memory    MemoryStats `json:"memory"`
	Disk      DiskStats   `json:"disk"`
	Database  int64       `json:"database_bytes"`
}

type CPUStats struct {
	SystemPercent  float64 `json:"system_percent"`
	ProcessPercent float64 `json:"process_percent"`
}

type MemoryStats struct {
	SystemTotal uint64 `json:"system_total"`
	SystemUsed  uint64 `json:"system_used"`
	SystemFree  uint64 `json:"system_free"`
	ProcessRSS  uint64 `json:"process_rss"`
}

type DiskStats struct {
	Path  string `json:"path"`
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

// New monitors the disk holding diskPath ("/" if empty).
func New(diskPath string) *Service {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Service{
		diskPath: diskPath,
		log:      logger.New("System Monitor"),
	}
}

// WithDatabase reports the size of the reading database.
func (s *Service) WithDatabase(size func() (int64, error)) *Service {
	s.dbSize = size
	return s
}

// Collect gathers a snapshot. Failing probes leave their fields zero.
func (s *Service) Collect() Stats {
	st := Stats{GoVersion: runtime.Version()}

	if list, err := cpu.Percent(0, false); err == nil && len(list) > 0 {
		st.CPU.SystemPercent = list[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		st.Memory.SystemTotal = vmem.Total
		st.Memory.SystemUsed = vmem.Used
		st.Memory.SystemFree = vmem.Available
	}

	disk, err := diskStats(s.diskPath)
	if err != nil {
		s.log.Debug("disk usage %s: %v", s.diskPath, err)
	}
	st.Disk = disk

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			st.Memory.ProcessRSS = memInfo.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			st.CPU.ProcessPercent = pct
		}
	}

	if s.dbSize != nil {
		if n, err := s.dbSize(); err == nil {
			st.Database = n
		}
	}
	return st
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := s.Collect()

	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			s.log.Error("encode: %v", err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, st); err != nil {
		s.log.Error("render: %v", err)
	}
}

const gb = 1024 * 1024 * 1024

var page = template.Must(template.New("sysmon").Funcs(template.FuncMap{
	"gb": func(v uint64) float64 { return float64(v) / gb },
	"mb": func(v any) float64 {
		switch n := v.(type) {
		case uint64:
			return float64(n) / (1024 * 1024)
		case int64:
			return float64(n) / (1024 * 1024)
		}
		return 0
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
	<title>System Monitor</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		table { border-collapse: collapse; width: 60%; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>System Monitor</h1>
	<p>Go {{.GoVersion}}</p>
	<h2>CPU</h2>
	<table>
		<tr><th>System %</th><th>Process %</th></tr>
		<tr><td>{{printf "%.2f" .CPU.SystemPercent}}%</td><td>{{printf "%.2f" .CPU.ProcessPercent}}%</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>System Total</th><th>System Used</th><th>System Free</th><th>Process RSS</th></tr>
		<tr>
			<td>{{printf "%.2f" (gb .Memory.SystemTotal)}} GB</td>
			<td>{{printf "%.2f" (gb .Memory.SystemUsed)}} GB</td>
			<td>{{printf "%.2f" (gb .Memory.SystemFree)}} GB</td>
			<td>{{printf "%.2f" (mb .Memory.ProcessRSS)}} MB</td>
		</tr>
	</table>
	<h2>Disk ({{.Disk.Path}})</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th><th>Database</th></tr>
		<tr>
			<td>{{printf "%.2f" (gb .Disk.Total)}} GB</td>
			<td>{{printf "%.2f" (gb .Disk.Used)}} GB</td>
			<td>{{printf "%.2f" (gb .Disk.Free)}} GB</td>
			<td>{{printf "%.2f" (mb .Database)}} MB</td>
		</tr>
	</table>
</body>
</html>
`))
