package ddcbus

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	i2cSlave  = 0x0703
	ddcciAddr = 0x37
	edidAddr  = 0x50
)

// RealProber drives address-0x37 responsiveness checks and address-0x50
// EDID reads over the real kernel i2c-dev interface, grounded in the same
// open/ioctl(I2C_SLAVE)/write/read sequence the teacher's probeDDCDevice
// uses, generalized into the reusable Prober contract the enumerator
// depends on.
type RealProber struct{}

func (RealProber) ProbeX37(bus int) (bool, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		return false, err
	}
	defer syscall.Close(fd)

	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), i2cSlave, uintptr(ddcciAddr)); errno != 0 {
		return false, errno
	}

	dummy := make([]byte, 32)
	syscall.Read(fd, dummy)

	writebuf := []byte{0x00}
	n, err := syscall.Write(fd, writebuf)
	if err == nil && n == len(writebuf) {
		return true, nil
	}

	readbuf := make([]byte, 4)
	n, err = syscall.Read(fd, readbuf)
	if err != nil || n == 0 {
		return false, nil
	}
	return true, nil
}

func (RealProber) ReadEDIDAt50(bus int) ([128]byte, error) {
	var out [128]byte
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		return out, err
	}
	defer syscall.Close(fd)

	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), i2cSlave, uintptr(edidAddr)); errno != 0 {
		return out, errno
	}

	if _, err := syscall.Write(fd, []byte{0x00}); err != nil {
		return out, err
	}

	pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(pollFds, 200); err != nil {
		return out, err
	}

	n, err := syscall.Read(fd, out[:])
	if err != nil {
		return out, err
	}
	if n != 128 {
		return out, fmt.Errorf("short edid read: %d/128 bytes", n)
	}
	return out, nil
}

var _ Prober = RealProber{}
