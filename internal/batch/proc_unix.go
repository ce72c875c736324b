// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build unix

package batch

import (
	"errors"
	"os"
	"syscall"
)

// sysProcAttr puts the shell in its own process group so that signals reach the commands
// it started as well.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

func kill(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	if err == nil {
		return nil
	}

	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}

	return p.Signal(sig)
}
