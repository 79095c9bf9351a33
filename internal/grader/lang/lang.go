// Package lang holds the language adapter table: one typed record per
// supported language describing how to name, compile, and run a source file.
package lang

import (
	"regexp"
	"strings"

	"github.com/google/shlex"

	"gradex/pkg/errors"
)

// Spec is one row of the adapter table. Command templates use the
// placeholders {src}, {bin}, and {entry}; they are split with shell-style
// quoting rules before substitution so an argument is never re-tokenized.
type Spec struct {
	// Name is the canonical language key, always lower case.
	Name string

	// SourceFile is the file name the code is written to inside the
	// workspace. For Java it contains {entry} and is derived from the
	// extracted public class name.
	SourceFile string

	// CompileCmd is empty for interpreted languages.
	CompileCmd string

	// RunCmd executes the compiled binary or the interpreter.
	RunCmd string

	// NeedsEntryPoint marks languages whose source file name depends on a
	// declaration inside the code itself.
	NeedsEntryPoint bool
}

// Compiled reports whether the language has a distinct compile step.
func (s Spec) Compiled() bool {
	return s.CompileCmd != ""
}

var registry = map[string]Spec{
	"python": {
		Name:       "python",
		SourceFile: "solution.py",
		RunCmd:     "python3 {src}",
	},
	"cpp": {
		Name:       "cpp",
		SourceFile: "solution.cpp",
		CompileCmd: "g++ -std=c++17 -O2 -o {bin} {src}",
		RunCmd:     "{bin}",
	},
	"c": {
		Name:       "c",
		SourceFile: "solution.c",
		CompileCmd: "gcc -std=c11 -O2 -o {bin} {src}",
		RunCmd:     "{bin}",
	},
	"java": {
		Name:            "java",
		SourceFile:      "{entry}.java",
		CompileCmd:      "javac {src}",
		RunCmd:          "java -cp . {entry}",
		NeedsEntryPoint: true,
	},
}

// aliases maps the submission-facing spellings onto canonical keys.
var aliases = map[string]string{
	"python3": "python",
	"py":      "python",
	"c++":     "cpp",
}

// Lookup resolves a language name to its adapter record. Unknown languages
// are an error; there is deliberately no default language.
func Lookup(name string) (Spec, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	spec, ok := registry[key]
	if !ok {
		return Spec{}, errors.Newf(errors.UnsupportedLanguage, "language %q is not supported", name)
	}
	return spec, nil
}

// Supported returns the canonical names of all registered languages.
func Supported() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

var javaPublicClass = regexp.MustCompile(`public\s+class\s+(\w+)`)

// ExtractEntryPoint pulls the entry point name out of the source code for
// languages that need one. For Java this is the public class name; compiling
// under any other file name fails, so a missing declaration is rejected
// before a workspace is ever created.
func ExtractEntryPoint(spec Spec, code string) (string, error) {
	if !spec.NeedsEntryPoint {
		return "", nil
	}
	m := javaPublicClass.FindStringSubmatch(code)
	if m == nil {
		return "", errors.New(errors.EntryPointNotFound).WithMessage("no public class declaration found")
	}
	return m[1], nil
}

// Command is an argv vector ready for exec. Argv[0] is the program.
type Command struct {
	Argv []string
}

// BuildCommands renders the compile and run command lines for a concrete
// submission. srcPath and binPath are absolute paths inside the workspace;
// entry is the extracted entry point (empty unless the spec needs one).
// Templates are tokenized first and substituted per-argument afterwards.
func BuildCommands(spec Spec, srcPath, binPath, entry string) (compile, run *Command, err error) {
	expand := func(template string) (*Command, error) {
		argv, err := shlex.Split(template)
		if err != nil {
			return nil, errors.Wrapf(err, errors.InternalServerError, "malformed command template %q", template)
		}
		for i, arg := range argv {
			arg = strings.ReplaceAll(arg, "{src}", srcPath)
			arg = strings.ReplaceAll(arg, "{bin}", binPath)
			arg = strings.ReplaceAll(arg, "{entry}", entry)
			argv[i] = arg
		}
		return &Command{Argv: argv}, nil
	}

	if spec.Compiled() {
		if compile, err = expand(spec.CompileCmd); err != nil {
			return nil, nil, err
		}
	}
	if run, err = expand(spec.RunCmd); err != nil {
		return nil, nil, err
	}
	return compile, run, nil
}

// SourceFileName resolves the workspace file name for a submission,
// substituting the entry point where the spec requires one.
func SourceFileName(spec Spec, entry string) string {
	return strings.ReplaceAll(spec.SourceFile, "{entry}", entry)
}
