package software

import (
	"path/filepath"

	"taucmdr/internal/target"
)

func builtinPackages() []*Package {
	return []*Package{binutils(), libunwind(), papi(), scorep()}
}

func binutils() *Package {
	return &Package{
		Name:      "binutils",
		Title:     "GNU Binutils",
		Sources:   target.Universal("http://ftp.gnu.org/gnu/binutils/binutils-2.23.2.tar.gz"),
		Libraries: target.Universal([]string{"libbfd.a"}),
		Headers:   target.Universal([]string{"bfd.h"}),
		ConfigureFlags: func(*Installation) []string {
			return []string{"--disable-nls", "--disable-werror", "--enable-install-libbfd"}
		},
	}
}

func libunwind() *Package {
	return &Package{
		Name:  "libunwind",
		Title: "libunwind",
		Sources: target.Table[string]{
			{}:                     "http://download.savannah.gnu.org/releases/libunwind/libunwind-1.1.tar.gz",
			{Arch: target.PPC64LE}: "http://download.savannah.gnu.org/releases/libunwind/libunwind-1.2.tar.gz",
		},
		Libraries: target.Universal([]string{"libunwind.a"}),
		Headers:   target.Universal([]string{"libunwind.h", "unwind.h"}),
		ConfigureFlags: func(*Installation) []string {
			return []string{"--disable-minidebuginfo"}
		},
	}
}

func papi() *Package {
	return &Package{
		Name:         "papi",
		Title:        "PAPI",
		Sources:      target.Universal("http://icl.cs.utk.edu/projects/papi/downloads/papi-5.4.1.tar.gz"),
		Commands:     target.Universal([]string{"papi_avail"}),
		Libraries:    target.Universal([]string{"libpapi.a"}),
		Headers:      target.Universal([]string{"papi.h"}),
		SourceSubdir: "src",
	}
}

func scorep() *Package {
	return &Package{
		Name:     "scorep",
		Title:    "Score-P",
		Sources:  target.Universal("http://www.vi-hps.org/upload/packages/scorep/scorep-1.4.2.tar.gz"),
		Commands: target.Universal([]string{"scorep", "scorep-config"}),
		Headers:  target.Universal([]string{"scorep/SCOREP_User.h"}),
		Dependencies: []Dependency{
			{Name: "papi", Optional: true},
			{Name: "libunwind", Optional: true},
		},
		ConfigureFlags: func(inst *Installation) []string {
			flags := []string{"--enable-shared", "--without-gui"}
			if dep, ok := inst.Dependencies["papi"]; ok {
				flags = append(flags,
					"--with-papi-header="+filepath.Join(dep.Prefix, "include"),
					"--with-papi-lib="+filepath.Join(dep.Prefix, "lib"))
			} else {
				flags = append(flags, "--without-papi")
			}
			if dep, ok := inst.Dependencies["libunwind"]; ok {
				flags = append(flags, "--with-libunwind="+dep.Prefix)
			} else {
				flags = append(flags, "--without-libunwind")
			}
			return flags
		},
	}
}
