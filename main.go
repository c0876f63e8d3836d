package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/velalang/vela/codegen"
	"github.com/velalang/vela/diag"
	"github.com/velalang/vela/ir"
	"github.com/velalang/vela/lexer"
	"github.com/velalang/vela/optimizer"
	"github.com/velalang/vela/parser"
	"github.com/velalang/vela/sema"
	"github.com/velalang/vela/token"
)

const (
	VL_SUFFIX  = ".vl"
	ASM_SUFFIX = ".s"
	OBJ_SUFFIX = ".o"
)

func hostTarget() string {
	if runtime.GOOS == "windows" {
		return "windows"
	}
	return "unix"
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: vela [flags] file%s\n", VL_SUFFIX)
	flag.PrintDefaults()
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		diag.PrintFatal(err.Error())
	}

	targetFlag := flag.String("target", cfg.Target, "target ABI: unix or windows")
	outFlag := flag.String("o", "", "output path (default: source name without suffix)")
	optFlag := flag.Int("O", cfg.Opt, "optimization level 0-2")
	asmOnly := flag.Bool("S", false, "stop after emitting assembly")
	verbose := flag.Bool("v", false, "print phase progress")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()
	diag.SetVerbose(*verbose)

	if *showVersion {
		fmt.Println("vela " + Version)
		return
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	srcPath := flag.Arg(0)
	if !strings.HasSuffix(srcPath, VL_SUFFIX) {
		diag.PrintFatal(fmt.Sprintf("%s: source files end in %s", srcPath, VL_SUFFIX))
	}

	target, err := codegen.ByName(*targetFlag)
	if err != nil {
		diag.PrintFatal(err.Error())
	}

	asm, cerrs := compile(srcPath, target, *optFlag)
	if len(cerrs) > 0 {
		for _, ce := range cerrs {
			diag.PrintError(ce)
		}
		os.Exit(1)
	}

	base := strings.TrimSuffix(srcPath, VL_SUFFIX)
	asmPath := base + ASM_SUFFIX
	if err := os.WriteFile(asmPath, []byte(asm), 0644); err != nil {
		diag.PrintFatal(fmt.Sprintf("write %s: %v", asmPath, err))
	}
	if *asmOnly {
		return
	}

	outPath := *outFlag
	if outPath == "" {
		outPath = base
		if target.Name == "windows" {
			outPath += ".exe"
		}
	}
	if err := assembleAndLink(cfg, target, asmPath, outPath); err != nil {
		diag.PrintFatal(err.Error())
	}
}

// compile runs the front and middle end over one source file and returns
// the generated assembly. Parse errors come back as a batch; later phases
// stop at the first error.
func compile(srcPath string, target codegen.Target, opt int) (string, []*token.CompileError) {
	source, err := os.ReadFile(srcPath)
	if err != nil {
		return "", []*token.CompileError{{
			Kind: token.CodeGenFailure,
			Msg:  fmt.Sprintf("read %s: %v", srcPath, err),
		}}
	}

	l := lexer.New(srcPath, string(source))
	p := parser.New(l)
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return "", errs
	}

	diag.Verbosef("parsed %s: %d statements", srcPath, len(program.Statements))

	analyzer := sema.NewAnalyzer()
	info, cerr := analyzer.Analyze(program)
	if cerr != nil {
		return "", []*token.CompileError{cerr}
	}

	builder := ir.NewBuilder(info)
	prog, cerr := builder.Build(program)
	if cerr != nil {
		return "", []*token.CompileError{cerr}
	}
	for _, fn := range prog.Funcs {
		if err := ir.Verify(fn); err != nil {
			return "", []*token.CompileError{{
				Kind: token.CodeGenFailure,
				Msg:  fmt.Sprintf("%s: %v", fn.Name, err),
			}}
		}
	}

	diag.Verbosef("lowered %d functions", len(prog.Funcs))
	optimizer.Optimize(prog, opt)

	gen := codegen.NewGenerator(target)
	asm, cerr := gen.Emit(prog)
	if cerr != nil {
		return "", []*token.CompileError{cerr}
	}
	return asm, nil
}

// assembleAndLink runs nasm over the generated assembly and links the
// object with the cached runtime using the system C compiler.
func assembleAndLink(cfg Config, target codegen.Target, asmPath, outPath string) error {
	format := "elf64"
	if target.Name == "windows" {
		format = "win64"
	}

	objPath := strings.TrimSuffix(asmPath, ASM_SUFFIX) + OBJ_SUFFIX
	diag.Verbosef("assembling %s (%s)", asmPath, format)
	if out, err := exec.Command(cfg.Nasm, "-f", format, asmPath, "-o", objPath).CombinedOutput(); err != nil {
		return fmt.Errorf("nasm: %v\n%s", err, out)
	}

	rtObjs, err := prepareRuntime(defaultCache(), cfg.CC)
	if err != nil {
		return err
	}

	args := []string{"-o", outPath, objPath}
	args = append(args, rtObjs...)
	if out, err := exec.Command(cfg.CC, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("link: %v\n%s", err, out)
	}
	return nil
}
