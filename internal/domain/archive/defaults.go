package archive

// DefaultInstaller is the bundled pip wheel; pip runs straight out of it.
const DefaultInstaller = "pip-9.0.1-py2.py3-none-any.whl"

// DefaultFilenames returns the pinned archives in install order.
// Build tooling and pure dependencies come before the packages that import them.
func DefaultFilenames() []string {
	return []string{
		"setuptools-36.2.7-py2.py3-none-any.whl",
		"six-1.10.0-py2.py3-none-any.whl",
		"numpy-1.13.1-cp27-none-win32.whl",
		"xlrd-1.1.0-py2.py3-none-any.whl",
		"xlwt-1.3.0-py2.py3-none-any.whl",
		"python_dateutil-2.6.1-py2.py3-none-any.whl",
		"pytz-2017.2-py2.py3-none-any.whl",
		"et_xmlfile-1.0.1.tar.gz",
		"openpyxl-2.4.8.tar.gz",
		"jdcal-1.3.tar.gz",
		"pandas-0.20.3-cp27-cp27m-win32.whl",
	}
}
