package ddctransport

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcerrs"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcsleep"
	"github.com/rockowitz/ddcutil-sub004/internal/log"
)

const (
	i2cSlave      = 0x0703 // I2C_SLAVE ioctl
	i2cSlaveForce = 0x0706 // I2C_SLAVE_FORCE ioctl
	ddcciAddr     = 0x37
)

// I2CStrategy drives DDC/CI over a Linux /dev/i2c-N adapter. It generalizes
// the teacher's probeDDCDevice/getVCPFeature/setVCPFeature from a single
// hardcoded brightness feature to arbitrary VCP codes, capabilities
// fragments, and save-settings, and plugs the poll/read/write sequence into
// the shared RetryPolicy rather than a fixed two-try loop.
type I2CStrategy struct {
	fd    int
	bus   int
	sleep *ddcsleep.Multiplier
}

// OpenI2C opens the given bus and binds the DDC/CI slave address, using the
// forcing variant of the ioctl when another driver already claims the
// address (force=true mirrors ddcutil's --force behavior).
func OpenI2C(bus int, force bool) (*I2CStrategy, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		return nil, &ddcerrs.IOError{Op: fmt.Sprintf("open %s", path), Err: err}
	}

	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), i2cSlave, uintptr(ddcciAddr))
	if errno == syscall.EBUSY && force {
		_, _, errno = syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), i2cSlaveForce, uintptr(ddcciAddr))
	}
	if errno != 0 {
		syscall.Close(fd)
		return nil, &ddcerrs.IOError{Op: fmt.Sprintf("ioctl(I2C_SLAVE) %s", path), Err: errno}
	}

	return &I2CStrategy{fd: fd, bus: bus, sleep: ddcsleep.NewMultiplier()}, nil
}

func (s *I2CStrategy) Close() error {
	return syscall.Close(s.fd)
}

func (s *I2CStrategy) Write(ctx context.Context, data []byte) error {
	n, err := syscall.Write(s.fd, data)
	if err != nil {
		return &ddcerrs.IOError{Op: "write " + s.devicePath(), Err: err}
	}
	if n != len(data) {
		return &ddcerrs.IOError{Op: "write " + s.devicePath(), Err: fmt.Errorf("short write: %d/%d", n, len(data))}
	}
	return nil
}

func (s *I2CStrategy) Read(ctx context.Context, maxLen int) ([]byte, error) {
	pollFds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	res, err := unix.Poll(pollFds, 200)
	if err != nil {
		return nil, &ddcerrs.IOError{Op: "poll " + s.devicePath(), Err: err}
	}
	if res == 0 || pollFds[0].Revents&unix.POLLIN == 0 {
		return nil, &ddcerrs.NullResponseError{Feature: 0}
	}

	buf := make([]byte, maxLen)
	n, err := syscall.Read(s.fd, buf)
	if err != nil {
		return nil, &ddcerrs.IOError{Op: "read " + s.devicePath(), Err: err}
	}
	if n == 0 {
		return nil, &ddcerrs.NullResponseError{Feature: 0}
	}
	return buf[:n], nil
}

// flushStaleReplies drains any queued response left over from a previous
// exchange, mirroring the teacher's dummy-read flush in getVCPFeature.
func (s *I2CStrategy) flushStaleReplies() {
	for i := 0; i < 3; i++ {
		dummy := make([]byte, 32)
		n, _ := syscall.Read(s.fd, dummy)
		if n == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (s *I2CStrategy) devicePath() string {
	return fmt.Sprintf("/dev/i2c-%d", s.bus)
}

func (s *I2CStrategy) GetVCPNontable(ctx context.Context, code byte) (NonTableReply, error) {
	policy := DefaultRetryPolicy(s.sleep)
	return RunWithRetries(code, policy, func() (NonTableReply, error) {
		s.flushStaleReplies()

		if err := s.Write(ctx, EncodeNontableGetRequest(code)); err != nil {
			return NonTableReply{}, err
		}
		time.Sleep(s.sleep.Scale(50 * time.Millisecond))

		raw, err := s.Read(ctx, 16)
		if err != nil {
			return NonTableReply{}, err
		}

		reply, err := DecodeNontableGetReply(code, raw)
		if err != nil {
			return NonTableReply{}, err
		}
		if reply.ResultCode != 0 {
			return NonTableReply{}, &ddcerrs.UnsupportedError{Kind: ddcerrs.ReportedUnsupported, Feature: code}
		}
		s.sleep.Backoff()
		return reply, nil
	})
}

func (s *I2CStrategy) SetVCPNontable(ctx context.Context, code byte, value uint16) error {
	if err := s.Write(ctx, EncodeNontableSetRequest(code, value)); err != nil {
		return err
	}
	time.Sleep(s.sleep.Scale(50 * time.Millisecond))
	return nil
}

func (s *I2CStrategy) GetCapabilitiesFragment(ctx context.Context, offset uint16) ([]byte, error) {
	s.flushStaleReplies()

	if err := s.Write(ctx, EncodeCapabilitiesRequest(offset)); err != nil {
		return nil, err
	}
	time.Sleep(s.sleep.Scale(50 * time.Millisecond))

	raw, err := s.Read(ctx, 40)
	if err != nil {
		return nil, err
	}

	gotOffset, fragment, err := DecodeCapabilitiesReply(raw)
	if err != nil {
		return nil, err
	}
	if gotOffset != offset {
		log.Debugf("capabilities reply offset mismatch: wanted %d, got %d", offset, gotOffset)
	}
	return fragment, nil
}

func (s *I2CStrategy) SaveCurrentSettings(ctx context.Context) error {
	if err := s.Write(ctx, EncodeSaveSettingsRequest()); err != nil {
		return err
	}
	time.Sleep(200 * time.Millisecond)
	return nil
}

var _ Strategy = (*I2CStrategy)(nil)
