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

//go:build linux

package sysmon

import "golang.org/x/sys/unix"

// diskStats reports the filesystem holding path. Free counts the blocks
// available to unprivileged users.
func diskStats(path string) (DiskStats, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return DiskStats{Path: path}, err
	}
	bsize := uint64(fs.Bsize)
	d := DiskStats{
		Path:  path,
		Total: fs.Blocks * bsize,
		Free:  fs.Bavail * bsize,
	}
	d.Used = d.Total - fs.Bfree*bsize
	return d, nil
}
