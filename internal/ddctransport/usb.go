package ddctransport

import (
	"context"
	"syscall"
	"time"
	"unsafe"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcerrs"
	"github.com/rockowitz/ddcutil-sub004/internal/ddcsleep"
)

// Legacy hiddev ioctl numbers. golang.org/x/sys/unix does not define these
// (hiddev.h is long deprecated in favor of hidraw), so they're derived here
// with the standard Linux ioctl-number formula (_IOR/_IOW/_IOWR, magic 'H'
// = 0x48) the same way the kernel's linux/hiddev.h does.
const (
	hidIOCMagic = 'H'

	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func iowr(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }

// hiddevUsageRefSize is sizeof(struct hiddev_usage_ref): four uint32 fields
// (report_type, report_id, field_index, usage_index) plus a signed int32
// value, little-endian on every Linux arch Go targets here.
const hiddevUsageRefSize = 5 * 4
const hiddevReportInfoSize = 3 * 4

var (
	hidiocGetReport = iowr(hidIOCMagic, 0x07, hiddevReportInfoSize) // HIDIOCGREPORT
	hidiocSetReport = iowr(hidIOCMagic, 0x08, hiddevReportInfoSize) // HIDIOCSREPORT
	hidiocGetUsage  = iowr(hidIOCMagic, 0x0B, hiddevUsageRefSize)   // HIDIOCGUSAGE
	hidiocSetUsage  = iowr(hidIOCMagic, 0x0C, hiddevUsageRefSize)   // HIDIOCSUSAGE
)

const hidReportTypeFeature = 0x03

// hiddevReportInfo mirrors struct hiddev_report_info: report_type,
// report_id, num_fields.
type hiddevReportInfo struct {
	ReportType uint32
	ReportID   uint32
	NumFields  uint32
}

// hiddevUsageRef mirrors struct hiddev_usage_ref.
type hiddevUsageRef struct {
	ReportType uint32
	ReportID   uint32
	FieldIndex uint32
	UsageIndex uint32
	Value      int32
}

// USBStrategy drives DDC/CI over a USB HID monitor's legacy hiddev node
// (/dev/usb/hiddevN), addressing VCP features as HID feature-report usages
// rather than I2C wire frames. It implements the same capability interface
// as I2CStrategy so the rest of the stack never branches on transport kind
// past the point of opening it.
type USBStrategy struct {
	fd    int
	path  string
	sleep *ddcsleep.Multiplier
}

func OpenUSB(path string) (*USBStrategy, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		return nil, &ddcerrs.IOError{Op: "open " + path, Err: err}
	}
	return &USBStrategy{fd: fd, path: path, sleep: ddcsleep.NewMultiplier()}, nil
}

func (s *USBStrategy) Close() error {
	return syscall.Close(s.fd)
}

// Write and Read are not meaningful in hiddev's report-based model; USB
// monitors are addressed field-by-field via ioctl, so these exist only to
// satisfy the Strategy interface and report that fact distinctly.
func (s *USBStrategy) Write(ctx context.Context, data []byte) error {
	return &ddcerrs.UnsupportedError{Kind: ddcerrs.DeterminedUnsupported}
}

func (s *USBStrategy) Read(ctx context.Context, maxLen int) ([]byte, error) {
	return nil, &ddcerrs.UnsupportedError{Kind: ddcerrs.DeterminedUnsupported}
}

func (s *USBStrategy) ioctl(num uintptr, arg unsafe.Pointer, opName string) error {
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(s.fd), num, uintptr(arg)); errno != 0 {
		return &ddcerrs.IOError{Op: opName + " " + s.path, Err: errno}
	}
	return nil
}

func (s *USBStrategy) getUsage(usageIndex uint32) (int32, error) {
	info := hiddevReportInfo{ReportType: hidReportTypeFeature}
	if err := s.ioctl(hidiocGetReport, unsafe.Pointer(&info), "ioctl(HIDIOCGREPORT)"); err != nil {
		return 0, err
	}

	ref := hiddevUsageRef{ReportType: hidReportTypeFeature, UsageIndex: usageIndex}
	if err := s.ioctl(hidiocGetUsage, unsafe.Pointer(&ref), "ioctl(HIDIOCGUSAGE)"); err != nil {
		return 0, err
	}
	return ref.Value, nil
}

func (s *USBStrategy) setUsage(usageIndex uint32, value int32) error {
	ref := hiddevUsageRef{ReportType: hidReportTypeFeature, UsageIndex: usageIndex, Value: value}
	if err := s.ioctl(hidiocSetUsage, unsafe.Pointer(&ref), "ioctl(HIDIOCSUSAGE)"); err != nil {
		return err
	}

	info := hiddevReportInfo{ReportType: hidReportTypeFeature}
	return s.ioctl(hidiocSetReport, unsafe.Pointer(&info), "ioctl(HIDIOCSREPORT)")
}

// GetVCPNontable maps the VCP feature code directly onto a HID usage index.
// A real build resolves that mapping from the report descriptor's monitor
// usage page at open time; that enumeration belongs to the bus layer, so
// here the feature code IS the usage index the caller has already resolved.
func (s *USBStrategy) GetVCPNontable(ctx context.Context, code byte) (NonTableReply, error) {
	policy := DefaultRetryPolicy(s.sleep)
	return RunWithRetries(code, policy, func() (NonTableReply, error) {
		val, err := s.getUsage(uint32(code))
		if err != nil {
			return NonTableReply{}, err
		}
		if val < 0 {
			return NonTableReply{}, &ddcerrs.NullResponseError{Feature: code}
		}
		s.sleep.Backoff()
		return NonTableReply{Type: 0x01, MaxValue: 0xFFFF, CurValue: uint16(val)}, nil
	})
}

func (s *USBStrategy) SetVCPNontable(ctx context.Context, code byte, value uint16) error {
	if err := s.setUsage(uint32(code), int32(value)); err != nil {
		return err
	}
	time.Sleep(s.sleep.Scale(30 * time.Millisecond))
	return nil
}

// GetCapabilitiesFragment: hiddev monitors don't expose a DDC/CI
// capabilities string, a real limitation this interface surfaces rather
// than papers over.
func (s *USBStrategy) GetCapabilitiesFragment(ctx context.Context, offset uint16) ([]byte, error) {
	return nil, &ddcerrs.UnsupportedError{Kind: ddcerrs.DeterminedUnsupported}
}

func (s *USBStrategy) SaveCurrentSettings(ctx context.Context) error {
	return nil
}

var _ Strategy = (*USBStrategy)(nil)
