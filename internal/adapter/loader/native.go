package loader

import (
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"sharpinstall/internal/domain"
)

// NativeLoader opens an installed module and verifies it is a shared library
// the host can map: the object format must match the OS and the machine type
// must match the CPU.
type NativeLoader struct {
	goos   string
	goarch string
}

// New creates a loader for the running process.
func New() *NativeLoader {
	return &NativeLoader{goos: runtime.GOOS, goarch: runtime.GOARCH}
}

// NewFor creates a loader that validates against an explicit GOOS/GOARCH.
func NewFor(goos, goarch string) *NativeLoader {
	return &NativeLoader{goos: goos, goarch: goarch}
}

// Load resolves the module file inside dir. The directory is passed in
// explicitly; nothing is read from process-wide state.
func (l *NativeLoader) Load(dir string) (*domain.Module, error) {
	path, err := moduleFile(dir)
	if err != nil {
		return nil, &domain.LoadError{Path: dir, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}

	format, machine, err := l.inspect(f)
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}

	return &domain.Module{
		Dir:     dir,
		Path:    path,
		Format:  format,
		Machine: machine,
		Size:    info.Size(),
	}, nil
}

// moduleFile picks the lexically first *.node file in dir.
func moduleFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), domain.ModuleSuffix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", domain.ErrNotFound
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

func (l *NativeLoader) inspect(r io.ReaderAt) (format, machine string, err error) {
	switch l.goos {
	case "linux":
		return l.inspectELF(r)
	case "darwin":
		return l.inspectMachO(r)
	case "windows":
		return l.inspectPE(r)
	default:
		return "", "", fmt.Errorf("no loader for %s", l.goos)
	}
}

var elfMachines = map[string]elf.Machine{
	"amd64": elf.EM_X86_64,
	"arm64": elf.EM_AARCH64,
	"arm":   elf.EM_ARM,
	"s390x": elf.EM_S390,
	"386":   elf.EM_386,
}

func (l *NativeLoader) inspectELF(r io.ReaderAt) (string, string, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return "", "", fmt.Errorf("not an ELF object: %w", err)
	}
	defer f.Close()

	if f.Type != elf.ET_DYN {
		return "", "", fmt.Errorf("ELF type %s is not a shared object", f.Type)
	}
	if want, ok := elfMachines[l.goarch]; ok && f.Machine != want {
		return "", "", fmt.Errorf("built for %s, host is %s", f.Machine, want)
	}
	return "elf", f.Machine.String(), nil
}

var machoCPUs = map[string]macho.Cpu{
	"amd64": macho.CpuAmd64,
	"arm64": macho.CpuArm64,
}

func (l *NativeLoader) inspectMachO(r io.ReaderAt) (string, string, error) {
	want, known := machoCPUs[l.goarch]

	if fat, err := macho.NewFatFile(r); err == nil {
		defer fat.Close()
		for _, arch := range fat.Arches {
			if !known || arch.Cpu == want {
				if arch.Type != macho.TypeBundle && arch.Type != macho.TypeDylib {
					return "", "", fmt.Errorf("Mach-O type %s is not loadable", arch.Type)
				}
				return "macho", arch.Cpu.String(), nil
			}
		}
		return "", "", fmt.Errorf("universal binary has no slice for %s", want)
	}

	f, err := macho.NewFile(r)
	if err != nil {
		return "", "", fmt.Errorf("not a Mach-O object: %w", err)
	}
	defer f.Close()

	if f.Type != macho.TypeBundle && f.Type != macho.TypeDylib {
		return "", "", fmt.Errorf("Mach-O type %s is not loadable", f.Type)
	}
	if known && f.Cpu != want {
		return "", "", fmt.Errorf("built for %s, host is %s", f.Cpu, want)
	}
	return "macho", f.Cpu.String(), nil
}

var peMachines = map[string]uint16{
	"amd64": pe.IMAGE_FILE_MACHINE_AMD64,
	"386":   pe.IMAGE_FILE_MACHINE_I386,
	"arm64": pe.IMAGE_FILE_MACHINE_ARM64,
}

func (l *NativeLoader) inspectPE(r io.ReaderAt) (string, string, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return "", "", fmt.Errorf("not a PE object: %w", err)
	}
	defer f.Close()

	if f.Characteristics&pe.IMAGE_FILE_DLL == 0 {
		return "", "", errors.New("PE image is not a DLL")
	}
	if want, ok := peMachines[l.goarch]; ok && f.Machine != want {
		return "", "", fmt.Errorf("built for machine 0x%x, host is 0x%x", f.Machine, want)
	}
	return "pe", fmt.Sprintf("0x%x", f.Machine), nil
}
