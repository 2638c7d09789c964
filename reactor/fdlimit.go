/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package reactor

import (
	"os"

	"github.com/shirou/gopsutil/process"

	"github.com/nabbar/eventdispatcher/internal/errs"
)

// currentFDLimit reports this process's RLIMIT_NOFILE, used as a
// diagnostic when poll() fails with EFAULT/EINVAL/ENOMEM (§4.11 step
// 8: "fatal with diagnostic including the current fd limit").
func currentFDLimit() (soft, hard uint64, err error) {
	p, perr := process.NewProcess(int32(os.Getpid()))
	if perr != nil {
		return 0, 0, errs.Wrap(errs.RuntimeError, perr, "reactor: could not open self process handle")
	}

	stats, rerr := p.RlimitUsage(false)
	if rerr != nil {
		return 0, 0, errs.Wrap(errs.RuntimeError, rerr, "reactor: could not read rlimit usage")
	}

	for _, s := range stats {
		if s.Resource == process.RLIMIT_NOFILE {
			return s.Soft, s.Hard, nil
		}
	}
	return 0, 0, errs.New(errs.RuntimeError, "reactor: RLIMIT_NOFILE not reported")
}
